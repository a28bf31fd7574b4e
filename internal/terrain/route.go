package terrain

import (
	"context"
	"math"

	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/raster"
)

// MFD computes multiple flow directions. Each valid cell gets an Int32 code
// packing eight 4-bit proportions, one per neighbour in the order E, NE, N,
// NW, W, SW, S, SE starting at the least significant nibble. Proportions
// follow the downhill slope to each neighbour and add up to roughly 15.
//
// Cells without a downhill neighbour drain off the grid when they touch its
// edge or nodata. Interior flats drain towards the nearest decided cell of
// the same elevation. Cells that still have nowhere to go are coded 0.
type MFD struct{}

func (MFD) Route(ctx context.Context, srcPath, dstPath string) error {
	dem, err := raster.Read(srcPath)
	if err != nil {
		return failure.IO("read filled dem", srcPath, err)
	}
	if dem.ValidCount() == 0 {
		return failure.Primitivef("route: %s has no valid cells", srcPath)
	}
	out, err := flowDirections(ctx, dem)
	if err != nil {
		return err
	}
	return failure.IO("write flow directions", dstPath, raster.Write(dstPath, out, raster.WriteOptions{Compress: true}))
}

// undecided marks cells whose direction is not known yet.
const undecided = -1

// DecodeMFD unpacks a flow direction code into its eight proportions.
func DecodeMFD(code float64) [8]uint8 {
	var p [8]uint8
	u := uint32(int32(code))
	for d := range p {
		p[d] = uint8(u >> (4 * d) & 0xF)
	}
	return p
}

func encodeMFD(p [8]uint8) float64 {
	var u uint32
	for d, v := range p {
		u |= uint32(v&0xF) << (4 * d)
	}
	return float64(int32(u))
}

// proportions scales weights to 4-bit shares.
func proportions(w [8]float64) [8]uint8 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	var p [8]uint8
	if sum == 0 {
		return p
	}
	for d, v := range w {
		p[d] = uint8(math.Round(v / sum * 15))
	}
	return p
}

func flowDirections(ctx context.Context, dem *raster.Grid) (*raster.Grid, error) {
	h := dem.Header
	h.Type, h.NoData, h.HasNoData = raster.Int32, raster.NoData, true
	out := raster.New(h)

	dist := make([]int, len(dem.Data))
	var flats []int
	for row := 0; row < dem.Height; row++ {
		if row%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for col := 0; col < dem.Width; col++ {
			idx := row*dem.Width + col
			z := dem.Data[idx]
			if dem.IsNoData(z) {
				dist[idx] = undecided
				continue
			}
			var downhill, outward [8]float64
			var hasDown, hasOut bool
			for d := 0; d < 8; d++ {
				nc, nr := col+dCol[d], row+dRow[d]
				if !dem.InBounds(nc, nr) || dem.IsNoData(dem.At(nc, nr)) {
					outward[d], hasOut = 1, true
					continue
				}
				if drop := z - dem.At(nc, nr); drop > 0 {
					if d%2 == 1 {
						drop /= math.Sqrt2
					}
					downhill[d], hasDown = drop, true
				}
			}
			switch {
			case hasDown:
				out.Data[idx] = encodeMFD(proportions(downhill))
			case hasOut:
				out.Data[idx] = encodeMFD(proportions(outward))
			default:
				dist[idx] = undecided
				flats = append(flats, idx)
				continue
			}
			dist[idx] = 0
		}
	}
	resolveFlats(dem, out, dist, flats)
	return out, nil
}

// resolveFlats walks outwards from decided cells across equal-elevation
// undecided cells and points each flat cell at its neighbours one step
// closer to a decided cell.
func resolveFlats(dem, out *raster.Grid, dist []int, flats []int) {
	if len(flats) == 0 {
		return
	}
	w := dem.Width
	queue := make([]int, 0, len(flats))
	seeded := make(map[int]bool)
	for _, idx := range flats {
		col, row := idx%w, idx/w
		for d := 0; d < 8; d++ {
			nc, nr := col+dCol[d], row+dRow[d]
			if !dem.InBounds(nc, nr) {
				continue
			}
			ni := nr*w + nc
			if dist[ni] == 0 && dem.Data[ni] == dem.Data[idx] && !seeded[ni] {
				seeded[ni] = true
				queue = append(queue, ni)
			}
		}
	}

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		col, row := idx%w, idx/w
		for d := 0; d < 8; d++ {
			nc, nr := col+dCol[d], row+dRow[d]
			if !dem.InBounds(nc, nr) {
				continue
			}
			ni := nr*w + nc
			if dist[ni] != undecided || dem.IsNoData(dem.Data[ni]) || dem.Data[ni] != dem.Data[idx] {
				continue
			}
			dist[ni] = dist[idx] + 1
			queue = append(queue, ni)
		}
	}

	for _, idx := range flats {
		if dist[idx] <= 0 {
			out.Data[idx] = 0
			continue
		}
		col, row := idx%w, idx/w
		var weights [8]float64
		for d := 0; d < 8; d++ {
			nc, nr := col+dCol[d], row+dRow[d]
			if !dem.InBounds(nc, nr) {
				continue
			}
			ni := nr*w + nc
			if dist[ni] == dist[idx]-1 && dem.Data[ni] == dem.Data[idx] {
				weights[d] = 1
			}
		}
		out.Data[idx] = encodeMFD(proportions(weights))
	}
}
