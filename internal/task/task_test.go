package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestComplete(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.tif")
	later := filepath.Join(dir, "later.tif")

	tk := &Task{Name: "a", Outputs: []string{out}, SatisfiedBy: []string{later}}
	assert.False(t, tk.Complete())

	touch(t, later)
	assert.True(t, tk.Complete(), "satisfied by a downstream output")

	require.NoError(t, os.Remove(later))
	touch(t, out)
	assert.True(t, tk.Complete())

	assert.False(t, (&Task{Name: "commit"}).Complete(), "tasks without outputs always run")
}

func TestRemoveOutputs(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a"), filepath.Join(dir, "b")
	touch(t, a)

	tk := &Task{Outputs: []string{a, b}}
	assert.Equal(t, []string{b}, tk.MissingOutputs())
	require.NoError(t, tk.RemoveOutputs())
	assert.NoFileExists(t, a)
	assert.Equal(t, []string{a, b}, tk.MissingOutputs())
}

func TestSameDefinition(t *testing.T) {
	a := &Task{Name: "x", Kind: Fill, TileID: 1, Outputs: []string{"o"}, Dependencies: []string{"d"}}
	b := *a
	assert.True(t, a.SameDefinition(&b))

	b.Outputs = []string{"other"}
	assert.False(t, a.SameDefinition(&b))
}

func TestStatus(t *testing.T) {
	assert.True(t, Cached.Succeeded())
	assert.True(t, Done.Succeeded())
	assert.False(t, Skipped.Succeeded())
	assert.False(t, Running.Terminal())
	assert.True(t, Canceled.Terminal())
	assert.Equal(t, "route", Route.String())
	assert.Len(t, Statuses(), 7)
}
