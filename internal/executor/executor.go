// Package executor runs a linked task graph on a bounded pool of workers.
//
// Workers pull ready tasks from the scheduler. A task whose outputs already
// exist is marked Cached without running. A failing task has its declared
// outputs removed and every task downstream of it marked Skipped; unrelated
// tasks keep running. Cancelling the context stops dispatch: tasks that
// never started end up Canceled and Run returns an error.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
	"github.com/specialistvlad/hydroshard/internal/dag"
	"github.com/specialistvlad/hydroshard/internal/scheduler"
	"github.com/specialistvlad/hydroshard/internal/task"
	"github.com/specialistvlad/hydroshard/internal/taskstore"
)

const tracerName = "github.com/specialistvlad/hydroshard/internal/executor"

// Observer receives execution events. Implementations must be safe for
// concurrent use.
type Observer interface {
	TaskFinished(t *task.Task, status task.Status, elapsed time.Duration)
	Progress(counts map[task.Status]int)
}

// Options configures an Executor.
type Options struct {
	// Workers defaults to runtime.NumCPU().
	Workers int
	// PollInterval is the cadence of progress reports. Zero disables them.
	PollInterval time.Duration
	Observer     Observer
}

// Failure describes a task that did not succeed.
type Failure struct {
	Task   *task.Task
	Status task.Status
	Err    error
}

// Summary is the outcome of a run.
type Summary struct {
	Counts map[task.Status]int
	// Failures lists failed, skipped and canceled tasks in graph order.
	Failures []Failure
}

// Executor runs one graph once.
type Executor struct {
	graph  *dag.Graph
	store  taskstore.Store
	opts   Options
	tracer trace.Tracer
	wg     sync.WaitGroup
}

// New creates an executor for a linked graph.
func New(g *dag.Graph, store taskstore.Store, opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Executor{
		graph:  g,
		store:  store,
		opts:   opts,
		tracer: otel.Tracer(tracerName),
	}
}

// Run executes the graph. Task failures are reported in the Summary; the
// returned error is non-nil only when the run was interrupted.
func (e *Executor) Run(ctx context.Context) (*Summary, error) {
	logger := ctxlog.FromContext(ctx)
	tasks := e.graph.Tasks()
	for _, t := range tasks {
		if err := e.store.SetStatus(ctx, t.Name, task.Pending); err != nil {
			return nil, err
		}
	}

	sched := scheduler.New(e.graph)
	logger.Info("🚀 Starting concurrent execution...", "tasks", len(tasks), "workers", e.opts.Workers)

	stopProgress := e.startProgress(ctx)

	e.wg.Add(e.opts.Workers)
	for i := 0; i < e.opts.Workers; i++ {
		go e.worker(ctx, sched, i)
	}
	e.wg.Wait()
	stopProgress()

	summary := &Summary{}
	for _, t := range tasks {
		status, _ := e.store.GetStatus(ctx, t.Name)
		if !status.Terminal() {
			status = task.Canceled
			_ = e.store.SetStatus(ctx, t.Name, status)
			_ = e.store.SetError(ctx, t.Name, context.Cause(ctx))
		}
		if status.Succeeded() {
			continue
		}
		taskErr, _ := e.store.GetError(ctx, t.Name)
		summary.Failures = append(summary.Failures, Failure{Task: t, Status: status, Err: taskErr})
	}
	summary.Counts, _ = e.store.Counts(ctx)
	e.report(ctx, summary.Counts)

	logger.Info("🏁 Execution finished.",
		"done", summary.Counts[task.Done],
		"cached", summary.Counts[task.Cached],
		"failed", summary.Counts[task.Failed],
		"skipped", summary.Counts[task.Skipped],
		"canceled", summary.Counts[task.Canceled],
	)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("execution interrupted: %w", err)
	}
	return summary, nil
}

// startProgress reports status counts every PollInterval until the returned
// function is called.
func (e *Executor) startProgress(ctx context.Context) func() {
	if e.opts.PollInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				counts, err := e.store.Counts(ctx)
				if err != nil {
					continue
				}
				e.report(ctx, counts)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (e *Executor) report(ctx context.Context, counts map[task.Status]int) {
	args := make([]any, 0, 2*len(task.Statuses()))
	for _, s := range task.Statuses() {
		args = append(args, s.String(), counts[s])
	}
	ctxlog.FromContext(ctx).Info("📊 Progress", args...)
	if e.opts.Observer != nil {
		e.opts.Observer.Progress(counts)
	}
}
