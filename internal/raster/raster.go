// Package raster reads and writes the single-band, georeferenced grids that
// flow between pipeline stages.
//
// Grids are stored as strip-organised GeoTIFF files: the georeferencing
// (affine geotransform + EPSG code) lives in the standard GeoTIFF tags and the
// nodata sentinel in the GDAL_NODATA tag, so the files open in any GIS tool.
// Values are held in memory as float64 regardless of the on-disk pixel type.
package raster

import (
	"fmt"
	"math"
)

// NoData is the sentinel written into every derived raster.
const NoData = -9999.0

// PixelType is the on-disk sample type of a raster.
type PixelType uint8

const (
	Float32 PixelType = iota + 1
	Float64
	Int32
	Int16
	UInt8
	UInt16
)

func (p PixelType) String() string {
	switch p {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int16:
		return "int16"
	case UInt8:
		return "uint8"
	case UInt16:
		return "uint16"
	}
	return fmt.Sprintf("PixelType(%d)", p)
}

// bits returns the sample width in bits.
func (p PixelType) bits() int {
	switch p {
	case Float64:
		return 64
	case Float32, Int32:
		return 32
	case Int16, UInt16:
		return 16
	case UInt8:
		return 8
	}
	return 0
}

// Holds reports whether v can be stored in the pixel type without wrapping.
func (p PixelType) Holds(v float64) bool {
	switch p {
	case Float64:
		return true
	case Float32:
		return math.IsNaN(v) || math.Abs(v) <= math.MaxFloat32
	case Int32:
		return v >= math.MinInt32 && v <= math.MaxInt32
	case Int16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case UInt16:
		return v >= 0 && v <= math.MaxUint16
	case UInt8:
		return v >= 0 && v <= math.MaxUint8
	}
	return false
}

// sampleFormat returns the TIFF SampleFormat value (1 uint, 2 int, 3 float).
func (p PixelType) sampleFormat() uint16 {
	switch p {
	case Float32, Float64:
		return 3
	case Int32, Int16:
		return 2
	}
	return 1
}

func pixelTypeOf(bits int, format uint16) (PixelType, error) {
	switch {
	case bits == 32 && format == 3:
		return Float32, nil
	case bits == 64 && format == 3:
		return Float64, nil
	case bits == 32 && format == 2:
		return Int32, nil
	case bits == 16 && format == 2:
		return Int16, nil
	case bits == 8 && format == 1:
		return UInt8, nil
	case bits == 16 && format == 1:
		return UInt16, nil
	}
	return 0, fmt.Errorf("unsupported sample layout: %d bits, sample format %d", bits, format)
}

// Header describes a raster without its pixel values.
type Header struct {
	Width  int
	Height int
	// GeoTransform uses the GDAL convention: x = gt[0] + col*gt[1] + row*gt[2],
	// y = gt[3] + col*gt[4] + row*gt[5].
	GeoTransform [6]float64
	// EPSG is the coordinate reference system code, 0 when unknown.
	EPSG      int
	NoData    float64
	HasNoData bool
	Type      PixelType
}

// Bounds returns the raster extent as [minX, minY, maxX, maxY].
func (h Header) Bounds() [4]float64 {
	gt := h.GeoTransform
	w, ht := float64(h.Width), float64(h.Height)
	xs := [4]float64{gt[0], gt[0] + w*gt[1], gt[0] + ht*gt[2], gt[0] + w*gt[1] + ht*gt[2]}
	ys := [4]float64{gt[3], gt[3] + w*gt[4], gt[3] + ht*gt[5], gt[3] + w*gt[4] + ht*gt[5]}
	b := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for i := 0; i < 4; i++ {
		b[0] = math.Min(b[0], xs[i])
		b[1] = math.Min(b[1], ys[i])
		b[2] = math.Max(b[2], xs[i])
		b[3] = math.Max(b[3], ys[i])
	}
	return b
}

// PixelCenter returns the map coordinate of the centre of a cell.
func (h Header) PixelCenter(col, row int) (float64, float64) {
	gt := h.GeoTransform
	c, r := float64(col)+0.5, float64(row)+0.5
	return gt[0] + c*gt[1] + r*gt[2], gt[3] + c*gt[4] + r*gt[5]
}

// Window returns the header of the sub-grid starting at (col, row).
func (h Header) Window(col, row, width, height int) Header {
	gt := h.GeoTransform
	out := h
	out.Width, out.Height = width, height
	out.GeoTransform[0] = gt[0] + float64(col)*gt[1] + float64(row)*gt[2]
	out.GeoTransform[3] = gt[3] + float64(col)*gt[4] + float64(row)*gt[5]
	return out
}

// IsNoData reports whether v is the header's nodata value. NaN counts as
// nodata for float rasters that carry no sentinel.
func (h Header) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return h.HasNoData && v == h.NoData
}

// Grid is a raster held in memory in row-major order.
type Grid struct {
	Header
	Data []float64
}

// New allocates a grid filled with the header's nodata value (zero when the
// header has none).
func New(h Header) *Grid {
	g := &Grid{Header: h, Data: make([]float64, h.Width*h.Height)}
	if h.HasNoData {
		for i := range g.Data {
			g.Data[i] = h.NoData
		}
	}
	return g
}

// At returns the value at (col, row).
func (g *Grid) At(col, row int) float64 { return g.Data[row*g.Width+col] }

// Set stores v at (col, row).
func (g *Grid) Set(col, row int, v float64) { g.Data[row*g.Width+col] = v }

// InBounds reports whether (col, row) lies inside the grid.
func (g *Grid) InBounds(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.Width && row < g.Height
}

// ValidCount returns the number of cells that are not nodata.
func (g *Grid) ValidCount() int {
	n := 0
	for _, v := range g.Data {
		if !g.IsNoData(v) {
			n++
		}
	}
	return n
}
