package geometry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/specialistvlad/hydroshard/internal/failure"
)

func polygon(t *testing.T, rings ...[]float64) *geom.Polygon {
	t.Helper()
	var flat []float64
	var ends []int
	for _, r := range rings {
		flat = append(flat, r...)
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

func TestRepair_ClosesAndOrients(t *testing.T) {
	// Clockwise, unclosed, with a repeated vertex.
	in := polygon(t, []float64{0, 0, 0, 2, 0, 2, 2, 2, 2, 0})

	out, err := Repair(in)
	require.NoError(t, err)

	p, ok := out.(*geom.Polygon)
	require.True(t, ok)
	want := []float64{0, 0, 2, 0, 2, 2, 0, 2, 0, 0}
	if diff := cmp.Diff(want, p.FlatCoords()); diff != "" {
		t.Errorf("ring mismatch (-want +got):\n%s", diff)
	}
}

func TestRepair_DropsDegenerateHole(t *testing.T) {
	in := polygon(t,
		[]float64{0, 0, 4, 0, 4, 4, 0, 4, 0, 0},
		[]float64{1, 1, 2, 2, 1, 1},
	)
	out, err := Repair(in)
	require.NoError(t, err)
	assert.Equal(t, 1, out.(*geom.Polygon).NumLinearRings())
}

func TestRepair_RejectsBowtie(t *testing.T) {
	in := polygon(t, []float64{0, 0, 4, 4, 4, 0, 0, 2, 0, 0})

	_, err := Repair(in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrGeometry))
	assert.ErrorContains(t, err, "self-intersects")
}

func TestRepair_RejectsEmpty(t *testing.T) {
	_, err := Repair(polygon(t, []float64{0, 0, 1, 1, 0, 0}))
	assert.True(t, errors.Is(err, failure.ErrGeometry))

	_, err = Repair(nil)
	assert.True(t, errors.Is(err, failure.ErrGeometry))

	_, err = Repair(geom.NewPointFlat(geom.XY, []float64{1, 1}))
	assert.True(t, errors.Is(err, failure.ErrGeometry))
}

func TestRepair_MultiPolygonSkipsDegenerateParts(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(polygon(t, []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0})))
	require.NoError(t, mp.Push(polygon(t, []float64{5, 5, 5, 5, 5, 5, 5, 5})))

	out, err := Repair(mp)
	require.NoError(t, err)
	assert.Equal(t, 1, out.(*geom.MultiPolygon).NumPolygons())
}

func TestBoundsAndContains(t *testing.T) {
	p := polygon(t,
		[]float64{0, 0, 4, 0, 4, 3, 0, 3, 0, 0},
		[]float64{1, 1, 1, 2, 2, 2, 2, 1, 1, 1},
	)
	assert.Equal(t, [4]float64{0, 0, 4, 3}, Bounds(p))

	assert.True(t, Contains(p, 3, 2.5))
	assert.False(t, Contains(p, 1.5, 1.5), "inside the hole")
	assert.False(t, Contains(p, 5, 1))
}

func TestGeoJSON(t *testing.T) {
	raw, err := GeoJSON(polygon(t, []float64{0, 0, 1, 0, 1, 1, 0, 0}))
	require.NoError(t, err)

	var obj struct {
		Type        string        `json:"type"`
		Coordinates [][][]float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Equal(t, "Polygon", obj.Type)
	assert.Len(t, obj.Coordinates[0], 4)
}
