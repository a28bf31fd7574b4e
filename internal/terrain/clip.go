package terrain

import (
	"context"
	"math"

	"github.com/twpayne/go-geom"

	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/geometry"
	"github.com/specialistvlad/hydroshard/internal/raster"
)

// snap absorbs floating point noise when converting map bounds to pixels.
const snap = 1e-6

// CutlineClipper crops the DEM to the cutline's bounding box and masks every
// cell whose centre falls outside the cutline with raster.NoData.
type CutlineClipper struct{}

func (CutlineClipper) Clip(ctx context.Context, demPath string, cutline geom.T, dstPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := raster.Open(demPath)
	if err != nil {
		return failure.IO("open dem", demPath, err)
	}
	defer r.Close()

	gt := r.GeoTransform
	if gt[2] != 0 || gt[4] != 0 {
		return failure.Primitivef("clip: rotated dem %s is not supported", demPath)
	}
	b := geometry.Bounds(cutline)
	col0 := clampInt(int(math.Floor((b[0]-gt[0])/gt[1]+snap)), 0, r.Width)
	col1 := clampInt(int(math.Ceil((b[2]-gt[0])/gt[1]-snap)), 0, r.Width)
	row0 := clampInt(int(math.Floor((b[3]-gt[3])/gt[5]+snap)), 0, r.Height)
	row1 := clampInt(int(math.Ceil((b[1]-gt[3])/gt[5]-snap)), 0, r.Height)
	if col1 <= col0 || row1 <= row0 {
		return failure.Geometryf("cutline %v does not overlap dem %v", b, r.Bounds())
	}

	win, err := r.ReadWindow(col0, row0, col1-col0, row1-row0)
	if err != nil {
		return failure.IO("read dem window", demPath, err)
	}

	h := win.Header
	h.NoData, h.HasNoData = raster.NoData, true
	if !h.Type.Holds(raster.NoData) {
		// Unsigned sources cannot carry the sentinel.
		h.Type = raster.Int32
	}
	out := raster.New(h)
	for row := 0; row < win.Height; row++ {
		for col := 0; col < win.Width; col++ {
			v := win.At(col, row)
			if win.IsNoData(v) {
				continue
			}
			if x, y := win.PixelCenter(col, row); geometry.Contains(cutline, x, y) {
				out.Set(col, row, v)
			}
		}
	}

	return failure.IO("write clipped dem", dstPath, raster.Write(dstPath, out, raster.WriteOptions{Compress: true}))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
