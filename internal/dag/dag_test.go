package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/hydroshard/internal/task"
)

func mk(name string, deps ...string) *task.Task {
	return &task.Task{Name: name, Kind: task.Fill, Outputs: []string{name + ".tif"}, Dependencies: deps}
}

func addAll(t *testing.T, g *Graph, tasks ...*task.Task) {
	t.Helper()
	for _, tk := range tasks {
		require.NoError(t, g.Add(tk))
	}
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAdd(t *testing.T) {
	g := New()

	require.NoError(t, g.Add(mk("a")))
	assert.Equal(t, 1, g.Len())
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)

	require.NoError(t, g.Add(mk("a")), "identical definition is a no-op")
	assert.Equal(t, 1, g.Len())

	conflicting := mk("a")
	conflicting.Outputs = []string{"elsewhere.tif"}
	assert.ErrorContains(t, g.Add(conflicting), "different definition")

	assert.Error(t, g.Add(&task.Task{}))
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		addAll(t, g, mk("a"), mk("b"))

		err := g.AddEdge("a", "b") // b depends on a
		require.NoError(t, err)

		nodeA := g.nodes["a"]
		nodeB := g.nodes["b"]

		assert.Contains(t, nodeA.dependents, "b")
		assert.Equal(t, nodeB, nodeA.dependents["b"])
		assert.Contains(t, nodeB.deps, "a")
		assert.Equal(t, nodeA, nodeB.deps["a"])
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		addAll(t, g, mk("a"), mk("b"))

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")
	})
}

func TestLink(t *testing.T) {
	t.Run("dependencies may be added after their dependents", func(t *testing.T) {
		g := New()
		addAll(t, g, mk("route", "fill"), mk("fill", "extract"), mk("extract"))
		require.NoError(t, g.Link())

		deps, err := g.Dependencies("route")
		require.NoError(t, err)
		require.Len(t, deps, 1)
		assert.Equal(t, "fill", deps[0].Name)

		dependents, err := g.Dependents("extract")
		require.NoError(t, err)
		require.Len(t, dependents, 1)
		assert.Equal(t, "fill", dependents[0].Name)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		g := New()
		addAll(t, g, mk("fill", "extract"))
		assert.ErrorContains(t, g.Link(), `unknown task "extract"`)
	})

	t.Run("cycle", func(t *testing.T) {
		g := New()
		addAll(t, g, mk("a", "b"), mk("b", "a"))
		assert.ErrorContains(t, g.Link(), "cycle detected")
	})

	t.Run("self dependency", func(t *testing.T) {
		g := New()
		addAll(t, g, mk("a", "a"))
		assert.ErrorContains(t, g.Link(), "depends on itself")
	})
}

func TestTasks_InsertionOrder(t *testing.T) {
	g := New()
	addAll(t, g, mk("c"), mk("a"), mk("b"))

	var names []string
	for _, tk := range g.Tasks() {
		names = append(names, tk.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)

	got, ok := g.Task("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Name)
	_, ok = g.Task("zzz")
	assert.False(t, ok)
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("graph with nodes but no edges has no cycles", func(t *testing.T) {
		g := New()
		addAll(t, g, mk("a"), mk("b"), mk("c"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := New()
		addAll(t, g, mk("a"), mk("b"), mk("c"), mk("d"))
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c")) // Transitive edge
		require.NoError(t, g.AddEdge("c", "d"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("longer cycle is detected", func(t *testing.T) {
		g := New()
		addAll(t, g, mk("a"), mk("b"), mk("c"), mk("d"))
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("c", "d"))
		require.NoError(t, g.AddEdge("d", "a")) // Cycle back to the start
		err := g.DetectCycles()
		assert.Error(t, err)
		assert.ErrorContains(t, err, "cycle detected")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		// Component 1 (valid)
		addAll(t, g, mk("a"), mk("b"))
		require.NoError(t, g.AddEdge("a", "b"))

		// Component 2 (has a cycle)
		addAll(t, g, mk("x"), mk("y"), mk("z"))
		require.NoError(t, g.AddEdge("x", "y"))
		require.NoError(t, g.AddEdge("y", "z"))
		require.NoError(t, g.AddEdge("z", "y")) // Cycle

		err := g.DetectCycles()
		assert.Error(t, err)
		assert.ErrorContains(t, err, "cycle detected")
	})
}
