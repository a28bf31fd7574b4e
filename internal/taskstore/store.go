package taskstore

import (
	"context"
	"sync"

	"github.com/specialistvlad/hydroshard/internal/task"
)

// Store holds the mutable execution state of tasks, keyed by task name.
type Store interface {
	SetStatus(ctx context.Context, name string, status task.Status) error
	// GetStatus returns task.Pending for unknown tasks.
	GetStatus(ctx context.Context, name string) (task.Status, error)
	SetError(ctx context.Context, name string, taskErr error) error
	// GetError returns nil when no error was recorded.
	GetError(ctx context.Context, name string) (error, error)
	// Counts tallies the recorded statuses.
	Counts(ctx context.Context) (map[task.Status]int, error)
}

// Memory is the in-memory Store.
type Memory struct {
	states sync.Map // Key: task name, Value: task.Status
	errors sync.Map // Key: task name, Value: error
}

// New creates a new, empty in-memory task state store.
func New() *Memory {
	return &Memory{}
}

// SetStatus updates the execution status of a task.
func (s *Memory) SetStatus(ctx context.Context, name string, status task.Status) error {
	s.states.Store(name, status)
	return nil
}

// GetStatus retrieves the execution status of a task.
func (s *Memory) GetStatus(ctx context.Context, name string) (task.Status, error) {
	status, ok := s.states.Load(name)
	if !ok {
		return task.Pending, nil
	}
	return status.(task.Status), nil
}

// SetError records the failure error of a task.
func (s *Memory) SetError(ctx context.Context, name string, taskErr error) error {
	if taskErr == nil {
		s.errors.Delete(name)
		return nil
	}
	s.errors.Store(name, taskErr)
	return nil
}

// GetError retrieves the recorded error of a failed task.
func (s *Memory) GetError(ctx context.Context, name string) (error, error) {
	err, ok := s.errors.Load(name)
	if !ok {
		return nil, nil
	}
	return err.(error), nil
}

// Counts tallies the statuses recorded so far.
func (s *Memory) Counts(ctx context.Context) (map[task.Status]int, error) {
	counts := make(map[task.Status]int)
	s.states.Range(func(_, v any) bool {
		counts[v.(task.Status)]++
		return true
	})
	return counts, nil
}
