package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// stripTarget is the approximate uncompressed size of one strip.
const stripTarget = 64 << 10

// WriteOptions controls how a grid is encoded.
type WriteOptions struct {
	// Compress enables lossless deflate compression of the strips.
	Compress bool
}

// Write encodes g as a little-endian GeoTIFF at path. The file is written
// to a temporary sibling and renamed into place, so path either holds the
// complete raster or is left untouched.
func Write(path string, g *Grid, opts WriteOptions) error {
	if g.Width <= 0 || g.Height <= 0 || len(g.Data) != g.Width*g.Height {
		return fmt.Errorf("grid %dx%d has %d values", g.Width, g.Height, len(g.Data))
	}
	if g.Type.bits() == 0 {
		return fmt.Errorf("grid has no pixel type")
	}
	if g.HasNoData && !g.Type.Holds(g.NoData) {
		return fmt.Errorf("nodata %v does not fit pixel type %s", g.NoData, g.Type)
	}
	if g.GeoTransform[2] != 0 || g.GeoTransform[4] != 0 {
		return fmt.Errorf("rotated geotransforms cannot be written")
	}
	buf, err := encode(g, opts)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

type tagValue struct {
	tag   uint16
	dtype uint16
	count uint32
	data  []byte
}

func encode(g *Grid, opts WriteOptions) ([]byte, error) {
	le := binary.LittleEndian
	sampleBytes := g.Type.bits() / 8
	rowBytes := g.Width * sampleBytes
	rps := stripTarget / rowBytes
	if rps < 1 {
		rps = 1
	}
	if rps > g.Height {
		rps = g.Height
	}

	var out bytes.Buffer
	out.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	var offsets, counts []uint32
	raw := make([]byte, rps*rowBytes)
	for row := 0; row < g.Height; row += rps {
		n := rps
		if row+n > g.Height {
			n = g.Height - row
		}
		chunk := raw[:n*rowBytes]
		encodeSamples(g.Type, g.Data[row*g.Width:(row+n)*g.Width], chunk)
		if opts.Compress {
			var zb bytes.Buffer
			zw := zlib.NewWriter(&zb)
			if _, err := zw.Write(chunk); err != nil {
				return nil, err
			}
			if err := zw.Close(); err != nil {
				return nil, err
			}
			chunk = zb.Bytes()
		}
		offsets = append(offsets, uint32(out.Len()))
		counts = append(counts, uint32(len(chunk)))
		out.Write(chunk)
	}
	if out.Len()%2 == 1 {
		out.WriteByte(0)
	}

	compression := uint16(compressionNone)
	if opts.Compress {
		compression = compressionDeflate
	}
	gt := g.GeoTransform
	tags := []tagValue{
		longs(tagImageWidth, uint32(g.Width)),
		longs(tagImageLength, uint32(g.Height)),
		shorts(tagBitsPerSample, uint16(g.Type.bits())),
		shorts(tagCompression, compression),
		shorts(tagPhotometric, 1),
		longs(tagStripOffsets, offsets...),
		shorts(tagSamplesPerPixel, 1),
		longs(tagRowsPerStrip, uint32(rps)),
		longs(tagStripByteCounts, counts...),
		shorts(tagPlanarConfig, 1),
		shorts(tagSampleFormat, g.Type.sampleFormat()),
		doubles(tagModelPixelScale, gt[1], -gt[5], 0),
		doubles(tagModelTiepoint, 0, 0, 0, gt[0], gt[3], 0),
		shorts(tagGeoKeyDirectory, geoKeys(g.EPSG)...),
	}
	if g.HasNoData {
		tags = append(tags, ascii(tagGDALNoData, strconv.FormatFloat(g.NoData, 'g', -1, 64)))
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].tag < tags[j].tag })

	ifdOffset := uint32(out.Len())
	le.PutUint32(out.Bytes()[4:8], ifdOffset)
	extra := ifdOffset + uint32(2+12*len(tags)+4)

	var ifd, ext bytes.Buffer
	writeU16(&ifd, uint16(len(tags)))
	for _, t := range tags {
		writeU16(&ifd, t.tag)
		writeU16(&ifd, t.dtype)
		writeU32(&ifd, t.count)
		if len(t.data) <= 4 {
			var inline [4]byte
			copy(inline[:], t.data)
			ifd.Write(inline[:])
			continue
		}
		writeU32(&ifd, extra+uint32(ext.Len()))
		ext.Write(t.data)
		if ext.Len()%2 == 1 {
			ext.WriteByte(0)
		}
	}
	writeU32(&ifd, 0)

	out.Write(ifd.Bytes())
	out.Write(ext.Bytes())
	return out.Bytes(), nil
}

func encodeSamples(t PixelType, src []float64, dst []byte) {
	le := binary.LittleEndian
	for i, v := range src {
		switch t {
		case Float32:
			le.PutUint32(dst[i*4:], math.Float32bits(float32(v)))
		case Float64:
			le.PutUint64(dst[i*8:], math.Float64bits(v))
		case Int32:
			le.PutUint32(dst[i*4:], uint32(int32(math.Round(v))))
		case Int16:
			le.PutUint16(dst[i*2:], uint16(int16(math.Round(v))))
		case UInt16:
			le.PutUint16(dst[i*2:], uint16(math.Round(v)))
		case UInt8:
			dst[i] = uint8(math.Round(v))
		}
	}
}

// geoKeys builds the GeoKeyDirectory: version header followed by sorted
// (key, location, count, value) quadruples.
func geoKeys(epsg int) []uint16 {
	type key struct{ id, value uint16 }
	var keys []key
	switch {
	case epsg == 0:
		keys = []key{{keyRasterType, 1}}
	case isGeographic(epsg):
		keys = []key{{keyModelType, 2}, {keyRasterType, 1}, {keyGeographicType, uint16(epsg)}}
	default:
		keys = []key{{keyModelType, 1}, {keyRasterType, 1}, {keyProjectedCSType, uint16(epsg)}}
	}
	out := []uint16{1, 1, 0, uint16(len(keys))}
	for _, k := range keys {
		out = append(out, k.id, 0, 1, k.value)
	}
	return out
}

func shorts(tag uint16, v ...uint16) tagValue {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(b[i*2:], x)
	}
	return tagValue{tag: tag, dtype: dtShort, count: uint32(len(v)), data: b}
}

func longs(tag uint16, v ...uint32) tagValue {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], x)
	}
	return tagValue{tag: tag, dtype: dtLong, count: uint32(len(v)), data: b}
}

func doubles(tag uint16, v ...float64) tagValue {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(x))
	}
	return tagValue{tag: tag, dtype: dtDouble, count: uint32(len(v)), data: b}
}

func ascii(tag uint16, s string) tagValue {
	b := append([]byte(s), 0)
	return tagValue{tag: tag, dtype: dtASCII, count: uint32(len(b)), data: b}
}

func writeU16(b *bytes.Buffer, v uint16) {
	var x [2]byte
	binary.LittleEndian.PutUint16(x[:], v)
	b.Write(x[:])
}

func writeU32(b *bytes.Buffer, v uint32) {
	var x [4]byte
	binary.LittleEndian.PutUint32(x[:], v)
	b.Write(x[:])
}
