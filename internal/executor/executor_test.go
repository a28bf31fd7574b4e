package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/hydroshard/internal/dag"
	"github.com/specialistvlad/hydroshard/internal/task"
	"github.com/specialistvlad/hydroshard/internal/taskstore"
	"github.com/specialistvlad/hydroshard/internal/testutil"
)

func writer(path string, calls *atomic.Int32) task.Func {
	return func(ctx context.Context) error {
		calls.Add(1)
		return os.WriteFile(path, []byte("ok"), 0o644)
	}
}

func linked(t *testing.T, tasks ...*task.Task) *dag.Graph {
	t.Helper()
	g := dag.New()
	for _, tk := range tasks {
		require.NoError(t, g.Add(tk))
	}
	require.NoError(t, g.Link())
	return g
}

type recorder struct {
	mu       sync.Mutex
	finished map[string]task.Status
	progress int
}

func (r *recorder) TaskFinished(t *task.Task, status task.Status, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = make(map[string]task.Status)
	}
	r.finished[t.Name] = status
}

func (r *recorder) Progress(map[task.Status]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress++
}

func TestRun_ChainAndCache(t *testing.T) {
	ctx := testutil.Context(t)
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a"), filepath.Join(dir, "b")
	var calls atomic.Int32

	build := func() *dag.Graph {
		return linked(t,
			&task.Task{Name: "a", Outputs: []string{a}, Run: writer(a, &calls)},
			&task.Task{Name: "b", Inputs: []string{a}, Outputs: []string{b}, Dependencies: []string{"a"}, Run: func(ctx context.Context) error {
				calls.Add(1)
				if _, err := os.Stat(a); err != nil {
					return err
				}
				return os.WriteFile(b, []byte("ok"), 0o644)
			}},
		)
	}

	obs := &recorder{}
	sum, err := New(build(), taskstore.New(), Options{Workers: 2, Observer: obs}).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, sum.Failures)
	assert.Equal(t, 2, sum.Counts[task.Done])
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, map[string]task.Status{"a": task.Done, "b": task.Done}, obs.finished)
	assert.Equal(t, 1, obs.progress, "final report")

	sum, err = New(build(), taskstore.New(), Options{Workers: 2}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Counts[task.Cached])
	assert.EqualValues(t, 2, calls.Load(), "second run invokes nothing")
}

func TestRun_FailureIsolation(t *testing.T) {
	ctx := testutil.Context(t)
	dir := t.TempDir()
	var calls atomic.Int32
	partial := filepath.Join(dir, "bad_fill")

	g := linked(t,
		&task.Task{Name: "bad_extract", Outputs: []string{filepath.Join(dir, "bad_extract")}, Run: writer(filepath.Join(dir, "bad_extract"), &calls)},
		&task.Task{Name: "bad_fill", Outputs: []string{partial}, Dependencies: []string{"bad_extract"}, Run: func(context.Context) error {
			_ = os.WriteFile(partial, []byte("half"), 0o644)
			return errors.New("boom")
		}},
		&task.Task{Name: "bad_route", Outputs: []string{filepath.Join(dir, "bad_route")}, Dependencies: []string{"bad_fill"}, Run: writer(filepath.Join(dir, "bad_route"), &calls)},
		&task.Task{Name: "bad_commit", Dependencies: []string{"bad_route"}, Run: func(context.Context) error {
			calls.Add(100)
			return nil
		}},
		&task.Task{Name: "good", Outputs: []string{filepath.Join(dir, "good")}, Run: writer(filepath.Join(dir, "good"), &calls)},
	)

	sum, err := New(g, taskstore.New(), Options{Workers: 3}).Run(ctx)
	require.NoError(t, err)
	assert.NoFileExists(t, partial, "outputs of a failed task are removed")
	assert.FileExists(t, filepath.Join(dir, "good"))
	assert.EqualValues(t, 2, calls.Load())

	require.Len(t, sum.Failures, 3)
	assert.Equal(t, "bad_fill", sum.Failures[0].Task.Name)
	assert.Equal(t, task.Failed, sum.Failures[0].Status)
	assert.ErrorContains(t, sum.Failures[0].Err, "boom")
	assert.Equal(t, task.Skipped, sum.Failures[1].Status)
	assert.Equal(t, task.Skipped, sum.Failures[2].Status)
	assert.ErrorContains(t, sum.Failures[2].Err, "upstream failure")
}

func TestRun_MissingOutputFailsTask(t *testing.T) {
	ctx := testutil.Context(t)
	g := linked(t, &task.Task{Name: "liar", Outputs: []string{filepath.Join(t.TempDir(), "never")}, Run: func(context.Context) error { return nil }})

	sum, err := New(g, taskstore.New(), Options{Workers: 1}).Run(ctx)
	require.NoError(t, err)
	require.Len(t, sum.Failures, 1)
	assert.ErrorContains(t, sum.Failures[0].Err, "verify outputs")
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	ctx := testutil.Context(t)
	g := linked(t, &task.Task{Name: "p", Run: func(context.Context) error { panic("kaboom") }})

	sum, err := New(g, taskstore.New(), Options{Workers: 1}).Run(ctx)
	require.NoError(t, err)
	require.Len(t, sum.Failures, 1)
	assert.ErrorContains(t, sum.Failures[0].Err, "kaboom")
}

func TestRun_WorkerIDAndBound(t *testing.T) {
	ctx := testutil.Context(t)
	var running, peak atomic.Int32
	var mu sync.Mutex
	seen := map[int]bool{}

	var tasks []*task.Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, &task.Task{Name: string(rune('a' + i)), Run: func(ctx context.Context) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			mu.Lock()
			seen[WorkerID(ctx)] = true
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			return nil
		}})
	}

	_, err := New(linked(t, tasks...), taskstore.New(), Options{Workers: 3}).Run(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	for id := range seen {
		assert.True(t, id >= 0 && id < 3, "worker id %d", id)
	}
	assert.Equal(t, -1, WorkerID(context.Background()))
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(testutil.Context(t))
	started := make(chan struct{})

	g := linked(t,
		&task.Task{Name: "slow", Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}},
		&task.Task{Name: "after", Dependencies: []string{"slow"}, Run: func(context.Context) error { return nil }},
	)

	go func() {
		<-started
		cancel()
	}()
	sum, err := New(g, taskstore.New(), Options{Workers: 1}).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, sum.Counts[task.Canceled])
}

func TestRun_ReportsProgress(t *testing.T) {
	ctx := testutil.Context(t)
	obs := &recorder{}
	g := linked(t, &task.Task{Name: "sleepy", Run: func(context.Context) error {
		time.Sleep(60 * time.Millisecond)
		return nil
	}})

	_, err := New(g, taskstore.New(), Options{Workers: 1, PollInterval: 10 * time.Millisecond, Observer: obs}).Run(ctx)
	require.NoError(t, err)
	assert.Greater(t, obs.progress, 1)
}
