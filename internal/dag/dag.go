package dag

import (
	"fmt"
	"sort"

	"github.com/specialistvlad/hydroshard/internal/task"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// Add inserts a task. Adding a task whose name is already present is a no-op
// when the definitions match and an error otherwise.
func (g *Graph) Add(t *task.Task) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("task must have a name")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if existing, ok := g.nodes[t.Name]; ok {
		if existing.task.SameDefinition(t) {
			return nil
		}
		return fmt.Errorf("task %q already defined with a different definition", t.Name)
	}

	g.nodes[t.Name] = &node{
		id:         t.Name,
		task:       t,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	g.order = append(g.order, t.Name)
	return nil
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.addEdge(fromID, toID)
}

func (g *Graph) addEdge(fromID, toID string) error {
	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Link turns every task's Dependencies into edges and checks the result for
// cycles. It is safe to call again after more tasks were added.
func (g *Graph) Link() error {
	g.mutex.Lock()
	for _, id := range g.order {
		n := g.nodes[id]
		for _, dep := range n.task.Dependencies {
			if dep == id {
				g.mutex.Unlock()
				return fmt.Errorf("task %q depends on itself", id)
			}
			if _, ok := g.nodes[dep]; !ok {
				g.mutex.Unlock()
				return fmt.Errorf("task %q depends on unknown task %q", id, dep)
			}
			if err := g.addEdge(dep, id); err != nil {
				g.mutex.Unlock()
				return err
			}
		}
	}
	g.mutex.Unlock()
	return g.DetectCycles()
}

// Task returns the task with the given name.
func (g *Graph) Task(id string) (*task.Task, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.task, true
}

// Tasks returns every task in insertion order.
func (g *Graph) Tasks() []*task.Task {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	out := make([]*task.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].task)
	}
	return out
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.order)
}

// Dependencies returns the tasks that the given task depends on, sorted by
// name.
func (g *Graph) Dependencies(id string) ([]*task.Task, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedTasks(n.deps), nil
}

// Dependents returns the tasks that depend on the given task, sorted by name.
func (g *Graph) Dependents(id string) ([]*task.Task, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedTasks(n.dependents), nil
}

func sortedTasks(m map[string]*node) []*task.Task {
	out := make([]*task.Task, 0, len(m))
	for _, n := range m {
		out = append(out, n.task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, indicating the first node involved in the detected cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Use classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("cycle detected involving node '%s'", n.id)
		}

		temporary[n.id] = true

		for _, dependent := range n.dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}

		delete(temporary, n.id)
		permanent[n.id] = true

		return nil
	}

	for _, id := range g.order {
		if !permanent[id] {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
	}

	return nil
}
