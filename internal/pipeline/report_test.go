package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/hydroshard/internal/executor"
	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/task"
)

func TestNewReport(t *testing.T) {
	b := NewBuilder(Config{WorkspaceRoot: "/ws", DEMPath: "dem.tif", VectorPath: "v.gpkg"})
	t5, t2, t9 := b.Tasks(5), b.Tasks(2), b.Tasks(9)

	failures := []executor.Failure{
		{Task: t5[1], Status: task.Failed, Err: failure.Primitivef("all nodata")},
		{Task: t5[2], Status: task.Skipped, Err: errors.New("skipped due to upstream failure of 'fill_pits_tile_5'")},
		{Task: t5[3], Status: task.Skipped, Err: errors.New("skipped")},
		{Task: t2[0], Status: task.Failed, Err: failure.Geometryf("ring 0 self-intersects")},
		{Task: t9[0], Status: task.Canceled, Err: context.Canceled},
	}

	got := NewReport("abc", failures)
	want := Report{
		RunID: "abc",
		Failures: []TileFailure{
			{TileID: 2, Stage: "extract", Kind: "geometry", Error: "geometry error: ring 0 self-intersects"},
			{TileID: 5, Stage: "fill", Kind: "primitive", Error: "primitive failure: all nodata"},
			{TileID: 9, Stage: "extract", Kind: "canceled", Error: "context canceled"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []int64{2, 5, 9}, got.TileIDs())
}

func TestReport_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.json")
	require.NoError(t, Report{RunID: "r1"}.Save(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, "r1", decoded["run_id"])

	empty := NewReport("r2", nil)
	require.NoError(t, empty.Save(path))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"failures": []`)
}
