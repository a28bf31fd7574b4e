// Package terrain holds the numerical primitives of the per-tile pipeline:
// clipping the source DEM to a cutline, filling depressions and computing
// multiple-flow-direction routing.
//
// The pipeline only depends on the Clipper, Filler and Router interfaces. The
// implementations here are straightforward in-memory versions that are good
// enough for tile-sized grids; any of them can be swapped for a faster or
// more faithful one without touching orchestration.
package terrain

import (
	"context"

	"github.com/twpayne/go-geom"
)

// Clipper extracts the part of a DEM covered by a cutline.
type Clipper interface {
	Clip(ctx context.Context, demPath string, cutline geom.T, dstPath string) error
}

// Filler removes depressions from a DEM.
type Filler interface {
	Fill(ctx context.Context, srcPath, dstPath string) error
}

// Router derives flow directions from a depression-free DEM.
type Router interface {
	Route(ctx context.Context, srcPath, dstPath string) error
}

// Primitives bundles the three stage implementations.
type Primitives struct {
	Clipper Clipper
	Filler  Filler
	Router  Router
}

// Default returns the in-memory implementations.
func Default() Primitives {
	return Primitives{
		Clipper: CutlineClipper{},
		Filler:  PriorityFlood{},
		Router:  MFD{},
	}
}

// neighbour offsets in MFD order: E, NE, N, NW, W, SW, S, SE.
var (
	dCol = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	dRow = [8]int{0, -1, -1, -1, 0, 1, 1, 1}
)
