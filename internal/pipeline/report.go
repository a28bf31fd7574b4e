package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/specialistvlad/hydroshard/internal/executor"
	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/fsutil"
	"github.com/specialistvlad/hydroshard/internal/task"
)

// TileFailure is the first stage of a tile that did not succeed.
type TileFailure struct {
	TileID int64  `json:"tile_id"`
	Stage  string `json:"stage"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// Report lists the failed tiles of a run.
type Report struct {
	RunID    string        `json:"run_id"`
	Failures []TileFailure `json:"failures"`
}

// NewReport keeps one entry per tile: the failed or canceled task that
// stopped it. Skipped tasks only repeat their upstream failure and are left
// out.
func NewReport(runID string, failures []executor.Failure) Report {
	r := Report{RunID: runID, Failures: []TileFailure{}}
	seen := make(map[int64]bool)
	for _, f := range failures {
		if f.Status == task.Skipped || seen[f.Task.TileID] {
			continue
		}
		seen[f.Task.TileID] = true

		kind := failure.KindOf(f.Err)
		if f.Status == task.Canceled {
			kind = "canceled"
		}
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		r.Failures = append(r.Failures, TileFailure{
			TileID: f.Task.TileID,
			Stage:  f.Task.Kind.String(),
			Kind:   kind,
			Error:  msg,
		})
	}
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].TileID < r.Failures[j].TileID })
	return r
}

// TileIDs returns the failed tile ids in ascending order.
func (r Report) TileIDs() []int64 {
	ids := make([]int64, len(r.Failures))
	for i, f := range r.Failures {
		ids[i] = f.TileID
	}
	return ids
}

// Save writes the report as indented JSON.
func (r Report) Save(path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding failure report: %w", err)
	}
	return failure.IO("save failure report", path, fsutil.WriteFileAtomic(path, append(b, '\n'), 0o644))
}
