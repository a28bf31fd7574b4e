package scheduler

import (
	"sync"

	"github.com/specialistvlad/hydroshard/internal/dag"
	"github.com/specialistvlad/hydroshard/internal/task"
)

// Scheduler streams ready tasks and learns about their outcome.
type Scheduler interface {
	// Ready streams tasks whose dependencies all succeeded. The channel is
	// closed once every task has been completed or abandoned.
	Ready() <-chan *task.Task
	// Complete records that a task succeeded and releases its dependents.
	Complete(name string)
	// Abandon records that a task did not succeed. Its transitive dependents
	// can never run; their names are returned so the caller can mark them.
	Abandon(name string) []string
}

// Queue is the dependency-counting Scheduler.
type Queue struct {
	graph *dag.Graph

	mu        sync.Mutex
	pending   map[string]int
	abandoned map[string]bool
	remaining int
	ready     chan *task.Task
}

// New creates a scheduler for a linked graph and queues its root tasks.
func New(g *dag.Graph) *Queue {
	tasks := g.Tasks()
	q := &Queue{
		graph:     g,
		pending:   make(map[string]int, len(tasks)),
		abandoned: make(map[string]bool),
		remaining: len(tasks),
		// Every task is sent at most once, so sends never block.
		ready: make(chan *task.Task, len(tasks)),
	}
	for _, t := range tasks {
		deps, _ := g.Dependencies(t.Name)
		q.pending[t.Name] = len(deps)
		if len(deps) == 0 {
			q.ready <- t
		}
	}
	if q.remaining == 0 {
		close(q.ready)
	}
	return q
}

// Ready implements Scheduler.
func (q *Queue) Ready() <-chan *task.Task { return q.ready }

// Complete implements Scheduler.
func (q *Queue) Complete(name string) {
	dependents, _ := q.graph.Dependents(name)

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range dependents {
		if q.abandoned[d.Name] {
			continue
		}
		q.pending[d.Name]--
		if q.pending[d.Name] == 0 {
			q.ready <- d
		}
	}
	q.resolve(1)
}

// Abandon implements Scheduler.
func (q *Queue) Abandon(name string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var skipped []string
	var walk func(string)
	walk = func(n string) {
		dependents, _ := q.graph.Dependents(n)
		for _, d := range dependents {
			if q.abandoned[d.Name] {
				continue
			}
			q.abandoned[d.Name] = true
			skipped = append(skipped, d.Name)
			walk(d.Name)
		}
	}
	walk(name)
	q.resolve(1 + len(skipped))
	return skipped
}

// Remaining returns the number of tasks not yet resolved.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining
}

func (q *Queue) resolve(n int) {
	q.remaining -= n
	if q.remaining == 0 {
		close(q.ready)
	}
}
