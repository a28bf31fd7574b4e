package vector

import (
	"encoding/binary"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/specialistvlad/hydroshard/internal/failure"
)

// GeoPackage binary header flag bits.
const (
	flagLittleEndian = 1 << 0
	flagEnvelopeMask = 0x7 << 1
	flagEmpty        = 1 << 4
)

// envelopeSizes maps the envelope indicator to its byte length.
var envelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// DecodeBlob parses a GeoPackage geometry blob: the "GP" header, an optional
// envelope and the standard WKB body. The header's srs id is not used; the
// raster and the vector store are expected to share a CRS.
func DecodeBlob(b []byte) (geom.T, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, failure.Geometryf("not a geopackage geometry blob")
	}
	flags := b[3]
	if flags&flagEmpty != 0 {
		return nil, failure.Geometryf("geometry is empty")
	}
	envSize, ok := envelopeSizes[(flags&flagEnvelopeMask)>>1]
	if !ok {
		return nil, failure.Geometryf("invalid envelope indicator in flags %#x", flags)
	}
	body := 8 + envSize
	if len(b) <= body {
		return nil, failure.Geometryf("geometry blob is truncated")
	}
	g, err := wkb.Unmarshal(b[body:])
	if err != nil {
		return nil, failure.Geometryf("decoding wkb: %v", err)
	}
	return g, nil
}

// EncodeBlob builds a little-endian GeoPackage geometry blob without an
// envelope.
func EncodeBlob(g geom.T, srid int) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, fmt.Errorf("encoding wkb: %w", err)
	}
	out := make([]byte, 8, 8+len(body))
	out[0], out[1], out[2], out[3] = 'G', 'P', 0, flagLittleEndian
	binary.LittleEndian.PutUint32(out[4:8], uint32(int32(srid)))
	return append(out, body...), nil
}
