package terrain

import (
	"container/heap"
	"context"

	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/raster"
)

// PriorityFlood fills depressions by flooding inwards from the grid edge and
// from cells bordering nodata, lowest cell first. Every cell ends up at least
// as high as the lowest spill path to an edge, leaving flat surfaces where
// pits were.
type PriorityFlood struct{}

func (PriorityFlood) Fill(ctx context.Context, srcPath, dstPath string) error {
	g, err := raster.Read(srcPath)
	if err != nil {
		return failure.IO("read dem", srcPath, err)
	}
	if g.ValidCount() == 0 {
		return failure.Primitivef("fill: %s has no valid cells", srcPath)
	}
	if err := fillDepressions(ctx, g); err != nil {
		return err
	}
	return failure.IO("write filled dem", dstPath, raster.Write(dstPath, g, raster.WriteOptions{Compress: true}))
}

type floodCell struct {
	idx int
	z   float64
	seq int
}

// floodQueue is a min-heap on elevation, FIFO among equal elevations.
type floodQueue []floodCell

func (q floodQueue) Len() int { return len(q) }
func (q floodQueue) Less(i, j int) bool {
	if q[i].z != q[j].z {
		return q[i].z < q[j].z
	}
	return q[i].seq < q[j].seq
}
func (q floodQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *floodQueue) Push(x any)   { *q = append(*q, x.(floodCell)) }
func (q *floodQueue) Pop() any {
	old := *q
	c := old[len(old)-1]
	*q = old[:len(old)-1]
	return c
}

func fillDepressions(ctx context.Context, g *raster.Grid) error {
	closed := make([]bool, len(g.Data))
	q := &floodQueue{}
	seq := 0
	push := func(idx int) {
		closed[idx] = true
		heap.Push(q, floodCell{idx: idx, z: g.Data[idx], seq: seq})
		seq++
	}

	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			idx := row*g.Width + col
			if !g.IsNoData(g.Data[idx]) && isBoundary(g, col, row) {
				push(idx)
			}
		}
	}

	for n := 0; q.Len() > 0; n++ {
		if n%65536 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		c := heap.Pop(q).(floodCell)
		col, row := c.idx%g.Width, c.idx/g.Width
		for d := 0; d < 8; d++ {
			nc, nr := col+dCol[d], row+dRow[d]
			if !g.InBounds(nc, nr) {
				continue
			}
			ni := nr*g.Width + nc
			if closed[ni] || g.IsNoData(g.Data[ni]) {
				continue
			}
			if g.Data[ni] < c.z {
				g.Data[ni] = c.z
			}
			push(ni)
		}
	}
	return nil
}

// isBoundary reports whether a valid cell touches the grid edge or nodata.
func isBoundary(g *raster.Grid, col, row int) bool {
	for d := 0; d < 8; d++ {
		nc, nr := col+dCol[d], row+dRow[d]
		if !g.InBounds(nc, nr) || g.IsNoData(g.At(nc, nr)) {
			return true
		}
	}
	return false
}
