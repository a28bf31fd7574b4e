package executor

import "context"

type workerKey struct{}

// WorkerID returns the slot of the worker running the task that owns ctx,
// or -1 outside a worker. Tasks use it to pick per-worker resources.
func WorkerID(ctx context.Context) int {
	if id, ok := ctx.Value(workerKey{}).(int); ok {
		return id
	}
	return -1
}

// WithWorkerID tags ctx with a worker slot.
func WithWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}
