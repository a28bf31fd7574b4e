package raster

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"
)

// Reader gives windowed access to a strip-organised GeoTIFF. Only the strips
// that intersect a requested window are read and decoded.
type Reader struct {
	Header

	path         string
	f            *os.File
	dir          *directory
	compression  uint64
	rowsPerStrip int
	stripOffsets []uint64
	stripCounts  []uint64
}

// Open parses the header of the raster at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newReader(path, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ReadHeader returns only the header of the raster at path.
func ReadHeader(path string) (Header, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, err
	}
	defer r.Close()
	return r.Header, nil
}

// Read loads the full raster at path.
func Read(path string) (*Grid, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadWindow(0, 0, r.Width, r.Height)
}

func newReader(path string, f *os.File) (*Reader, error) {
	dir, err := readDirectory(f)
	if err != nil {
		return nil, err
	}
	if dir.has(tagTileWidth) {
		return nil, fmt.Errorf("tiled tiffs are not supported")
	}
	width, err := dir.uint(tagImageWidth, 0)
	if err != nil {
		return nil, err
	}
	height, err := dir.uint(tagImageLength, 0)
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("raster has no pixels")
	}
	spp, err := dir.uint(tagSamplesPerPixel, 1)
	if err != nil {
		return nil, err
	}
	if spp != 1 {
		return nil, fmt.Errorf("expected a single band, found %d samples per pixel", spp)
	}
	bps, err := dir.uint(tagBitsPerSample, 1)
	if err != nil {
		return nil, err
	}
	format, err := dir.uint(tagSampleFormat, 1)
	if err != nil {
		return nil, err
	}
	ptype, err := pixelTypeOf(int(bps), uint16(format))
	if err != nil {
		return nil, err
	}
	predictor, err := dir.uint(tagPredictor, 1)
	if err != nil {
		return nil, err
	}
	if predictor != 1 {
		return nil, fmt.Errorf("predictor %d is not supported", predictor)
	}
	compression, err := dir.uint(tagCompression, compressionNone)
	if err != nil {
		return nil, err
	}
	switch compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflate2:
	default:
		return nil, fmt.Errorf("compression %d is not supported", compression)
	}
	rps, err := dir.uint(tagRowsPerStrip, height)
	if err != nil {
		return nil, err
	}
	if rps == 0 || rps > height {
		rps = height
	}
	offsets, _, err := dir.uints(tagStripOffsets)
	if err != nil {
		return nil, err
	}
	counts, _, err := dir.uints(tagStripByteCounts)
	if err != nil {
		return nil, err
	}
	nStrips := int((height + rps - 1) / rps)
	if len(offsets) < nStrips || len(counts) < nStrips {
		return nil, fmt.Errorf("expected %d strips, found %d offsets and %d counts", nStrips, len(offsets), len(counts))
	}
	gt, err := dir.geoTransform()
	if err != nil {
		return nil, err
	}
	epsg, err := dir.epsg()
	if err != nil {
		return nil, err
	}

	h := Header{
		Width:        int(width),
		Height:       int(height),
		GeoTransform: gt,
		EPSG:         epsg,
		Type:         ptype,
	}
	if s, ok, err := dir.ascii(tagGDALNoData); err != nil {
		return nil, err
	} else if ok && s != "" {
		v, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			return nil, fmt.Errorf("bad nodata value %q: %w", s, perr)
		}
		h.NoData, h.HasNoData = v, true
	}

	return &Reader{
		Header:       h,
		path:         path,
		f:            f,
		dir:          dir,
		compression:  compression,
		rowsPerStrip: int(rps),
		stripOffsets: offsets,
		stripCounts:  counts,
	}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// ReadWindow decodes the width×height block starting at (col, row). The
// window must lie inside the raster.
func (r *Reader) ReadWindow(col, row, width, height int) (*Grid, error) {
	if col < 0 || row < 0 || width <= 0 || height <= 0 || col+width > r.Width || row+height > r.Height {
		return nil, fmt.Errorf("window %d,%d %dx%d outside %dx%d raster", col, row, width, height, r.Width, r.Height)
	}
	g := &Grid{Header: r.Window(col, row, width, height), Data: make([]float64, width*height)}
	sampleBytes := r.Type.bits() / 8
	rowBytes := r.Width * sampleBytes

	cached := -1
	var strip []byte
	for y := 0; y < height; y++ {
		srcRow := row + y
		s := srcRow / r.rowsPerStrip
		if s != cached {
			var err error
			if strip, err = r.strip(s); err != nil {
				return nil, err
			}
			cached = s
		}
		start := (srcRow-s*r.rowsPerStrip)*rowBytes + col*sampleBytes
		end := start + width*sampleBytes
		if end > len(strip) {
			return nil, fmt.Errorf("strip %d is truncated", s)
		}
		r.decodeRow(strip[start:end], g.Data[y*width:(y+1)*width])
	}
	return g, nil
}

func (r *Reader) strip(i int) ([]byte, error) {
	buf := make([]byte, r.stripCounts[i])
	if _, err := r.f.ReadAt(buf, int64(r.stripOffsets[i])); err != nil {
		return nil, fmt.Errorf("reading strip %d: %w", i, err)
	}
	switch r.compression {
	case compressionDeflate, compressionDeflate2:
		zr, err := zlib.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("strip %d: %w", i, err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case compressionLZW:
		lr := lzw.NewReader(bytes.NewReader(buf), lzw.MSB, 8)
		defer lr.Close()
		return io.ReadAll(lr)
	}
	return buf, nil
}

func (r *Reader) decodeRow(src []byte, dst []float64) {
	o := r.dir.order
	for i := range dst {
		switch r.Type {
		case Float32:
			dst[i] = float64(math.Float32frombits(o.Uint32(src[i*4:])))
		case Float64:
			dst[i] = math.Float64frombits(o.Uint64(src[i*8:]))
		case Int32:
			dst[i] = float64(int32(o.Uint32(src[i*4:])))
		case Int16:
			dst[i] = float64(int16(o.Uint16(src[i*2:])))
		case UInt16:
			dst[i] = float64(o.Uint16(src[i*2:]))
		case UInt8:
			dst[i] = float64(src[i])
		}
	}
}
