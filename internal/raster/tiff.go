package raster

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// TIFF tag ids used by the codec.
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagPredictor        = 317
	tagTileWidth        = 322
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagModelTransform   = 34264
	tagGeoKeyDirectory  = 34735
	tagGDALNoData       = 42113
	keyModelType        = 1024
	keyRasterType       = 1025
	keyGeographicType   = 2048
	keyProjectedCSType  = 3072
	compressionNone     = 1
	compressionLZW      = 5
	compressionDeflate  = 8
	compressionDeflate2 = 32946
)

// TIFF field types.
const (
	dtByte   = 1
	dtASCII  = 2
	dtShort  = 3
	dtLong   = 4
	dtSByte  = 6
	dtSShort = 8
	dtSLong  = 9
	dtFloat  = 11
	dtDouble = 12
)

func typeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtDouble:
		return 8
	}
	return 0
}

// ifdEntry is one raw directory entry; values are resolved lazily.
type ifdEntry struct {
	tag   uint16
	dtype uint16
	count uint32
	raw   [4]byte
}

// directory is a parsed image file directory bound to its source.
type directory struct {
	order   binary.ByteOrder
	src     io.ReaderAt
	entries map[uint16]ifdEntry
}

func readDirectory(src io.ReaderAt) (*directory, error) {
	var hdr [8]byte
	if _, err := src.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("reading tiff header: %w", err)
	}
	var order binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a tiff file")
	}
	switch order.Uint16(hdr[2:4]) {
	case 42:
	case 43:
		return nil, fmt.Errorf("bigtiff is not supported")
	default:
		return nil, fmt.Errorf("bad tiff magic")
	}
	off := int64(order.Uint32(hdr[4:8]))

	var countBuf [2]byte
	if _, err := src.ReadAt(countBuf[:], off); err != nil {
		return nil, fmt.Errorf("reading ifd: %w", err)
	}
	n := int(order.Uint16(countBuf[:]))
	buf := make([]byte, 12*n)
	if _, err := src.ReadAt(buf, off+2); err != nil {
		return nil, fmt.Errorf("reading ifd entries: %w", err)
	}

	d := &directory{order: order, src: src, entries: make(map[uint16]ifdEntry, n)}
	for i := 0; i < n; i++ {
		b := buf[i*12 : (i+1)*12]
		e := ifdEntry{
			tag:   order.Uint16(b[0:2]),
			dtype: order.Uint16(b[2:4]),
			count: order.Uint32(b[4:8]),
		}
		copy(e.raw[:], b[8:12])
		d.entries[e.tag] = e
	}
	return d, nil
}

func (d *directory) has(tag uint16) bool {
	_, ok := d.entries[tag]
	return ok
}

func (d *directory) bytes(tag uint16) ([]byte, uint16, bool, error) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, 0, false, nil
	}
	size := typeSize(e.dtype) * int(e.count)
	if size == 0 {
		return nil, e.dtype, true, fmt.Errorf("tag %d has unsupported type %d", tag, e.dtype)
	}
	if size <= 4 {
		return e.raw[:size], e.dtype, true, nil
	}
	buf := make([]byte, size)
	if _, err := d.src.ReadAt(buf, int64(d.order.Uint32(e.raw[:]))); err != nil {
		return nil, e.dtype, true, fmt.Errorf("reading tag %d: %w", tag, err)
	}
	return buf, e.dtype, true, nil
}

// uints decodes an integer-typed tag.
func (d *directory) uints(tag uint16) ([]uint64, bool, error) {
	b, dt, ok, err := d.bytes(tag)
	if !ok || err != nil {
		return nil, ok, err
	}
	sz := typeSize(dt)
	out := make([]uint64, len(b)/sz)
	for i := range out {
		p := b[i*sz:]
		switch dt {
		case dtByte, dtSByte:
			out[i] = uint64(p[0])
		case dtShort, dtSShort:
			out[i] = uint64(d.order.Uint16(p))
		case dtLong, dtSLong:
			out[i] = uint64(d.order.Uint32(p))
		default:
			return nil, true, fmt.Errorf("tag %d: expected integer type, got %d", tag, dt)
		}
	}
	return out, true, nil
}

func (d *directory) uint(tag uint16, def uint64) (uint64, error) {
	v, ok, err := d.uints(tag)
	if err != nil {
		return 0, err
	}
	if !ok || len(v) == 0 {
		return def, nil
	}
	return v[0], nil
}

// floats decodes a floating point tag.
func (d *directory) floats(tag uint16) ([]float64, bool, error) {
	b, dt, ok, err := d.bytes(tag)
	if !ok || err != nil {
		return nil, ok, err
	}
	sz := typeSize(dt)
	out := make([]float64, len(b)/sz)
	for i := range out {
		p := b[i*sz:]
		switch dt {
		case dtDouble:
			out[i] = math.Float64frombits(d.order.Uint64(p))
		case dtFloat:
			out[i] = float64(math.Float32frombits(d.order.Uint32(p)))
		default:
			return nil, true, fmt.Errorf("tag %d: expected float type, got %d", tag, dt)
		}
	}
	return out, true, nil
}

func (d *directory) ascii(tag uint16) (string, bool, error) {
	b, _, ok, err := d.bytes(tag)
	if !ok || err != nil {
		return "", ok, err
	}
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00")), true, nil
}

// geoTransform derives the affine transform from the model tags.
func (d *directory) geoTransform() ([6]float64, error) {
	var gt [6]float64
	if m, ok, err := d.floats(tagModelTransform); err != nil {
		return gt, err
	} else if ok && len(m) >= 16 {
		return [6]float64{m[3], m[0], m[1], m[7], m[4], m[5]}, nil
	}

	scale, okScale, err := d.floats(tagModelPixelScale)
	if err != nil {
		return gt, err
	}
	tie, okTie, err := d.floats(tagModelTiepoint)
	if err != nil {
		return gt, err
	}
	if !okScale || !okTie || len(scale) < 2 || len(tie) < 6 {
		return gt, fmt.Errorf("raster is not georeferenced")
	}
	gt[1] = scale[0]
	gt[5] = -scale[1]
	gt[0] = tie[3] - tie[0]*gt[1]
	gt[3] = tie[4] - tie[1]*gt[5]
	return gt, nil
}

// epsg extracts the projected or geographic CRS code from the GeoKey
// directory. Keys stored outside the directory are ignored.
func (d *directory) epsg() (int, error) {
	keys, ok, err := d.uints(tagGeoKeyDirectory)
	if err != nil || !ok || len(keys) < 4 {
		return 0, err
	}
	n := int(keys[3])
	var geographic int
	for i := 0; i < n && 4+i*4+3 < len(keys); i++ {
		k := keys[4+i*4:]
		if k[1] != 0 {
			continue
		}
		switch k[0] {
		case keyProjectedCSType:
			return int(k[3]), nil
		case keyGeographicType:
			geographic = int(k[3])
		}
	}
	return geographic, nil
}

func isGeographic(epsg int) bool { return epsg >= 4000 && epsg < 5000 }
