package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/scheduler"
	"github.com/specialistvlad/hydroshard/internal/task"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, sched scheduler.Scheduler, workerID int) {
	defer e.wg.Done()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Context canceled, worker stopping.", "workerID", workerID)
			return
		case t, ok := <-sched.Ready():
			if !ok {
				logger.Debug("Worker finished.", "workerID", workerID)
				return
			}
			if ctx.Err() != nil {
				return
			}
			e.execute(ctx, sched, t, workerID)
		}
	}
}

func (e *Executor) execute(ctx context.Context, sched scheduler.Scheduler, t *task.Task, workerID int) {
	taskCtx := ctxlog.With(WithWorkerID(ctx, workerID), "workerID", workerID, "task", t.Name)
	logger := ctxlog.FromContext(taskCtx)

	if t.Complete() {
		logger.Debug("Outputs exist, skipping task.")
		e.finish(taskCtx, t, task.Cached, nil, 0)
		sched.Complete(t.Name)
		return
	}

	logger.Debug("Worker picked up task for execution.")
	_ = e.store.SetStatus(taskCtx, t.Name, task.Running)
	start := time.Now()

	spanCtx, span := e.tracer.Start(taskCtx, t.Name, trace.WithAttributes(
		attribute.String("task.kind", t.Kind.String()),
		attribute.Int64("tile.id", t.TileID),
		attribute.Int("worker.id", workerID),
	))
	err := runTask(spanCtx, t)
	if err == nil {
		if missing := t.MissingOutputs(); len(missing) > 0 {
			err = failure.IO("verify outputs", missing[0], fs.ErrNotExist)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	elapsed := time.Since(start)

	if err == nil {
		logger.Debug("Task succeeded.", "elapsed", elapsed)
		e.finish(taskCtx, t, task.Done, nil, elapsed)
		sched.Complete(t.Name)
		return
	}

	status := task.Failed
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		status = task.Canceled
		logger.Warn("Task interrupted.", "error", err)
	} else {
		logger.Error("Task failed.", "error", err)
	}
	if rmErr := t.RemoveOutputs(); rmErr != nil {
		logger.Warn("Could not remove outputs of failed task.", "error", rmErr)
	}
	e.finish(taskCtx, t, status, err, elapsed)

	skippedStatus := task.Skipped
	if status == task.Canceled {
		skippedStatus = task.Canceled
	}
	for _, name := range sched.Abandon(t.Name) {
		logger.Warn("Skipping dependent task due to upstream failure.", "dependent", name)
		_ = e.store.SetStatus(taskCtx, name, skippedStatus)
		_ = e.store.SetError(taskCtx, name, fmt.Errorf("skipped due to upstream failure of '%s'", t.Name))
	}
}

func (e *Executor) finish(ctx context.Context, t *task.Task, status task.Status, err error, elapsed time.Duration) {
	_ = e.store.SetStatus(ctx, t.Name, status)
	_ = e.store.SetError(ctx, t.Name, err)
	if e.opts.Observer != nil {
		e.opts.Observer.TaskFinished(t, status, elapsed)
	}
}

// runTask calls the task body, turning a panic into an error so one bad
// tile cannot take the run down.
func runTask(ctx context.Context, t *task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()
	if t.Run == nil {
		return nil
	}
	return t.Run(ctx)
}
