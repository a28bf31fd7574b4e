// Package pipeline turns tiles into stage tasks.
//
// Every tile gets the same four-task chain: Extract clips the source DEM to
// the tile's cutline, Fill removes depressions, Route computes flow
// directions and Commit hands the result to the routing index. Stages
// exchange data only through files inside the tile's shard directory, so a
// rerun picks up exactly where the previous one stopped.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/hydroshard/internal/dag"
	"github.com/specialistvlad/hydroshard/internal/routingindex"
	"github.com/specialistvlad/hydroshard/internal/shard"
	"github.com/specialistvlad/hydroshard/internal/task"
	"github.com/specialistvlad/hydroshard/internal/terrain"
	"github.com/specialistvlad/hydroshard/internal/vector"
)

// File name prefixes of the stage outputs. The catalog collections select
// rasters by these.
const (
	ExtractedPrefix = "extracted_dem"
	FilledPrefix    = "filled_dem"
	FlowDirPrefix   = "flow_dir_mfd"
)

// Config holds what every tile's tasks share.
type Config struct {
	WorkspaceRoot string
	DEMPath       string
	VectorPath    string
	Vectors       *vector.Pool
	Primitives    terrain.Primitives
	Index         *routingindex.Accumulator
}

// Builder adds tile task chains to a graph.
type Builder struct {
	cfg      Config
	basename string
}

// NewBuilder returns a builder for cfg.
func NewBuilder(cfg Config) *Builder {
	base := filepath.Base(cfg.VectorPath)
	return &Builder{
		cfg:      cfg,
		basename: strings.TrimSuffix(base, filepath.Ext(base)),
	}
}

// TilePaths are the files a tile's tasks produce.
type TilePaths struct {
	Dir       string
	Extracted string
	Filled    string
	FlowDir   string
}

// Paths returns the workspace paths of a tile.
func (b *Builder) Paths(tileID int64) TilePaths {
	dir := shard.TileDir(b.cfg.WorkspaceRoot, b.basename, tileID)
	return TilePaths{
		Dir:       dir,
		Extracted: filepath.Join(dir, fmt.Sprintf("%s_%d.tif", ExtractedPrefix, tileID)),
		Filled:    filepath.Join(dir, fmt.Sprintf("%s_%d.tif", FilledPrefix, tileID)),
		FlowDir:   filepath.Join(dir, fmt.Sprintf("%s_%d.tif", FlowDirPrefix, tileID)),
	}
}

// Task names of a tile's chain.
func ExtractName(tileID int64) string { return fmt.Sprintf("extract_dem_tile_%d", tileID) }
func FillName(tileID int64) string    { return fmt.Sprintf("fill_pits_tile_%d", tileID) }
func RouteName(tileID int64) string   { return fmt.Sprintf("flow_dir_tile_%d", tileID) }
func CommitName(tileID int64) string  { return fmt.Sprintf("commit_tile_%d", tileID) }

// Tasks returns the four tasks of a tile in stage order.
func (b *Builder) Tasks(tileID int64) []*task.Task {
	p := b.Paths(tileID)
	extract := &task.Task{
		Name:        ExtractName(tileID),
		Kind:        task.Extract,
		TileID:      tileID,
		Inputs:      []string{b.cfg.DEMPath, b.cfg.VectorPath},
		Outputs:     []string{p.Extracted},
		SatisfiedBy: []string{p.Filled},
	}
	extract.Run = b.extract(tileID, p)

	fill := &task.Task{
		Name:         FillName(tileID),
		Kind:         task.Fill,
		TileID:       tileID,
		Inputs:       []string{p.Extracted},
		Outputs:      []string{p.Filled},
		Dependencies: []string{extract.Name},
	}
	fill.Run = b.fill(p)

	route := &task.Task{
		Name:         RouteName(tileID),
		Kind:         task.Route,
		TileID:       tileID,
		Inputs:       []string{p.Filled},
		Outputs:      []string{p.FlowDir},
		Dependencies: []string{fill.Name},
	}
	route.Run = b.route(p)

	commit := &task.Task{
		Name:         CommitName(tileID),
		Kind:         task.Commit,
		TileID:       tileID,
		Inputs:       []string{p.FlowDir},
		Dependencies: []string{route.Name},
	}
	commit.Run = b.commit(tileID, p)

	return []*task.Task{extract, fill, route, commit}
}

// AddTile adds a tile's chain to g. Adding the same tile twice is a no-op.
// The graph still needs to be linked before execution.
func (b *Builder) AddTile(g *dag.Graph, tileID int64) error {
	for _, t := range b.Tasks(tileID) {
		if err := g.Add(t); err != nil {
			return fmt.Errorf("adding tile %d: %w", tileID, err)
		}
	}
	return nil
}

// Build adds every tile and links the graph.
func (b *Builder) Build(g *dag.Graph, tileIDs []int64) error {
	for _, id := range tileIDs {
		if err := b.AddTile(g, id); err != nil {
			return err
		}
	}
	if err := g.Link(); err != nil {
		return fmt.Errorf("linking task graph: %w", err)
	}
	return nil
}
