// Package task describes the unit of work the executor schedules.
//
// A Task is a tagged descriptor: Kind says which pipeline stage it belongs
// to, Inputs and Outputs name the files it reads and writes, and
// Dependencies name the tasks that must finish first. Outputs double as the
// cache key: a task whose outputs all exist is complete and is not run again.
package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
)

// Kind identifies the pipeline stage a task implements.
type Kind int

const (
	Extract Kind = iota + 1
	Fill
	Route
	Commit
)

func (k Kind) String() string {
	switch k {
	case Extract:
		return "extract"
	case Fill:
		return "fill"
	case Route:
		return "route"
	case Commit:
		return "commit"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Func is the body of a task.
type Func func(ctx context.Context) error

// Task is one schedulable unit of work.
type Task struct {
	// Name is unique within a graph.
	Name   string
	Kind   Kind
	TileID int64
	// Inputs are the files the task reads.
	Inputs []string
	// Outputs are the files the task writes. They are removed when the task
	// fails so that a partial file never satisfies the cache.
	Outputs []string
	// SatisfiedBy lists files whose existence also proves the task complete,
	// for tasks whose own outputs are consumed and deleted downstream.
	SatisfiedBy []string
	// Dependencies are names of tasks that must succeed first.
	Dependencies []string
	Run          Func
}

// Complete reports whether the task's work is already on disk. Tasks that
// declare no outputs are never complete.
func (t *Task) Complete() bool {
	if len(t.Outputs) == 0 {
		return false
	}
	if allExist(t.Outputs) {
		return true
	}
	return len(t.SatisfiedBy) > 0 && allExist(t.SatisfiedBy)
}

// RemoveOutputs deletes whatever declared outputs exist.
func (t *Task) RemoveOutputs() error {
	var errs []error
	for _, p := range t.Outputs {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MissingOutputs returns the declared outputs that do not exist.
func (t *Task) MissingOutputs() []string {
	var missing []string
	for _, p := range t.Outputs {
		if !exists(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// SameDefinition reports whether two tasks describe the same work. The Run
// function is not compared.
func (t *Task) SameDefinition(o *Task) bool {
	return t.Name == o.Name &&
		t.Kind == o.Kind &&
		t.TileID == o.TileID &&
		slices.Equal(t.Inputs, o.Inputs) &&
		slices.Equal(t.Outputs, o.Outputs) &&
		slices.Equal(t.SatisfiedBy, o.SatisfiedBy) &&
		slices.Equal(t.Dependencies, o.Dependencies)
}

func allExist(paths []string) bool {
	for _, p := range paths {
		if !exists(p) {
			return false
		}
	}
	return true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Status is the execution state of a task within one run.
type Status int

const (
	Pending Status = iota
	Running
	// Done means the task ran and succeeded.
	Done
	// Cached means the task was complete before the run and was not run.
	Cached
	Failed
	// Skipped means an upstream task failed.
	Skipped
	// Canceled means the run was interrupted before the task finished.
	Canceled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Cached:
		return "cached"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Canceled:
		return "canceled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Succeeded reports whether dependents may run after a task in this state.
func (s Status) Succeeded() bool { return s == Done || s == Cached }

// Terminal reports whether the state is final for the run.
func (s Status) Terminal() bool { return s != Pending && s != Running }

// Statuses lists every state in declaration order.
func Statuses() []Status {
	return []Status{Pending, Running, Done, Cached, Failed, Skipped, Canceled}
}
