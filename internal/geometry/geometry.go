// Package geometry turns raw vector features into cutlines that are safe to
// clip with.
//
// Repair performs the cheap, unambiguous fixes (duplicate vertices, unclosed
// rings, ring orientation, degenerate rings) and then validates what is
// left. A ring that still crosses itself is reported as a geometry error:
// choosing how to split a bowtie changes the tile's footprint, so it is not
// guessed here.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/specialistvlad/hydroshard/internal/failure"
)

// Repair returns a valid 2D polygon or multipolygon equivalent to g.
func Repair(g geom.T) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		p, err := repairPolygon(t)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, failure.Geometryf("polygon is empty after repair")
		}
		return p, nil
	case *geom.MultiPolygon:
		out := geom.NewMultiPolygon(geom.XY)
		for i := 0; i < t.NumPolygons(); i++ {
			p, err := repairPolygon(t.Polygon(i))
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", i, err)
			}
			if p == nil {
				continue
			}
			if err := out.Push(p); err != nil {
				return nil, failure.Geometryf("assembling multipolygon: %v", err)
			}
		}
		if out.NumPolygons() == 0 {
			return nil, failure.Geometryf("multipolygon is empty after repair")
		}
		return out, nil
	case nil:
		return nil, failure.Geometryf("feature has no geometry")
	default:
		return nil, failure.Geometryf("unsupported geometry type %T", g)
	}
}

// repairPolygon returns nil when the exterior ring degenerates.
func repairPolygon(p *geom.Polygon) (*geom.Polygon, error) {
	if p.NumLinearRings() == 0 {
		return nil, nil
	}
	var flat []float64
	var ends []int
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := cleanRing(p.LinearRing(i).FlatCoords(), p.Stride())
		if ring == nil {
			if i == 0 {
				return nil, nil
			}
			continue
		}
		exterior := i == 0
		if isCCW(ring) != exterior {
			reverse(ring)
		}
		if j, k, ok := selfIntersection(ring); ok {
			return nil, failure.Geometryf("ring %d self-intersects between segments %d and %d", i, j, k)
		}
		flat = append(flat, ring...)
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends), nil
}

// cleanRing drops Z/M, removes repeated vertices and closes the ring. It
// returns nil for rings with fewer than three distinct vertices or no area.
func cleanRing(src []float64, stride int) []float64 {
	var out []float64
	for i := 0; i+1 < len(src); i += stride {
		x, y := src[i], src[i+1]
		if n := len(out); n >= 2 && out[n-2] == x && out[n-1] == y {
			continue
		}
		out = append(out, x, y)
	}
	if n := len(out); n >= 4 && out[0] == out[n-2] && out[1] == out[n-1] {
		out = out[:n-2]
	}
	if len(out) < 6 {
		return nil
	}
	out = append(out, out[0], out[1])
	if signedArea(out) == 0 {
		return nil
	}
	return out
}

// signedArea is positive for counter-clockwise closed rings.
func signedArea(ring []float64) float64 {
	var a float64
	for i := 0; i+3 < len(ring); i += 2 {
		a += ring[i]*ring[i+3] - ring[i+2]*ring[i+1]
	}
	return a / 2
}

func isCCW(ring []float64) bool { return signedArea(ring) > 0 }

func reverse(ring []float64) {
	for i, j := 0, len(ring)-2; i < j; i, j = i+2, j-2 {
		ring[i], ring[j] = ring[j], ring[i]
		ring[i+1], ring[j+1] = ring[j+1], ring[i+1]
	}
}

// selfIntersection finds the first pair of non-adjacent segments of a closed
// ring that touch.
func selfIntersection(ring []float64) (int, int, bool) {
	n := len(ring)/2 - 1
	for i := 0; i < n; i++ {
		ax, ay, bx, by := ring[2*i], ring[2*i+1], ring[2*i+2], ring[2*i+3]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			cx, cy, dx, dy := ring[2*j], ring[2*j+1], ring[2*j+2], ring[2*j+3]
			if segmentsIntersect(ax, ay, bx, by, cx, cy, dx, dy) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func orient(ax, ay, bx, by, cx, cy float64) int {
	v := (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func onSegment(ax, ay, bx, by, px, py float64) bool {
	return math.Min(ax, bx) <= px && px <= math.Max(ax, bx) &&
		math.Min(ay, by) <= py && py <= math.Max(ay, by)
}

func segmentsIntersect(ax, ay, bx, by, cx, cy, dx, dy float64) bool {
	o1 := orient(ax, ay, bx, by, cx, cy)
	o2 := orient(ax, ay, bx, by, dx, dy)
	o3 := orient(cx, cy, dx, dy, ax, ay)
	o4 := orient(cx, cy, dx, dy, bx, by)
	if o1 != o2 && o3 != o4 {
		return true
	}
	return (o1 == 0 && onSegment(ax, ay, bx, by, cx, cy)) ||
		(o2 == 0 && onSegment(ax, ay, bx, by, dx, dy)) ||
		(o3 == 0 && onSegment(cx, cy, dx, dy, ax, ay)) ||
		(o4 == 0 && onSegment(cx, cy, dx, dy, bx, by))
}

// Bounds returns [minX, minY, maxX, maxY] of g.
func Bounds(g geom.T) [4]float64 {
	b := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	flat, stride := g.FlatCoords(), g.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		b[0] = math.Min(b[0], flat[i])
		b[1] = math.Min(b[1], flat[i+1])
		b[2] = math.Max(b[2], flat[i])
		b[3] = math.Max(b[3], flat[i+1])
	}
	return b
}

// Contains reports whether (x, y) lies inside a polygon or multipolygon,
// holes excluded.
func Contains(g geom.T, x, y float64) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, x, y)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), x, y) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, x, y float64) bool {
	inside := false
	for i := 0; i < p.NumLinearRings(); i++ {
		if ringCrossings(p.LinearRing(i).FlatCoords(), p.Stride(), x, y) {
			inside = !inside
		}
	}
	return inside
}

// ringCrossings is the even-odd ray casting test for one ring.
func ringCrossings(flat []float64, stride int, x, y float64) bool {
	in := false
	n := len(flat) / stride
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := flat[i*stride], flat[i*stride+1]
		xj, yj := flat[j*stride], flat[j*stride+1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}

// GeoJSON encodes g as a GeoJSON geometry object.
func GeoJSON(g geom.T) (json.RawMessage, error) {
	b, err := geojson.Marshal(g)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
