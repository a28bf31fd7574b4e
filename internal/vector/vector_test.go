package vector_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/testutil"
	"github.com/specialistvlad/hydroshard/internal/vector"
)

func TestStore_DescribeAndList(t *testing.T) {
	ctx := testutil.Context(t)
	path := filepath.Join(t.TempDir(), "basins.gpkg")
	testutil.WriteGeoPackage(t, path, testutil.Layer{
		Name:           "global_lev05",
		GeometryColumn: "shape",
		Features: map[int64]geom.T{
			12: testutil.Square(2, 2, 1),
			10: testutil.Square(0, 0, 1),
			11: testutil.Square(1, 1, 1),
		},
	})

	s, err := vector.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	layer, err := s.Describe(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(vector.Layer{Name: "global_lev05", GeometryColumn: "shape", FIDColumn: "fid"}, layer); diff != "" {
		t.Errorf("layer mismatch (-want +got):\n%s", diff)
	}

	ids, err := s.FeatureIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, ids)

	g, err := s.Geometry(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, testutil.Square(1, 1, 1).FlatCoords(), g.FlatCoords())
}

func TestStore_MissingFeatureIsGeometryError(t *testing.T) {
	ctx := testutil.Context(t)
	path := filepath.Join(t.TempDir(), "basins.gpkg")
	testutil.WriteGeoPackage(t, path, testutil.Layer{Name: "basins", Features: map[int64]geom.T{1: testutil.Square(0, 0, 1)}})

	s, err := vector.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Geometry(ctx, 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrGeometry))
}

func TestStore_LayerCountIsConfigurationError(t *testing.T) {
	ctx := testutil.Context(t)
	dir := t.TempDir()

	multi := filepath.Join(dir, "multi.gpkg")
	testutil.WriteGeoPackage(t, multi,
		testutil.Layer{Name: "a", Features: map[int64]geom.T{1: testutil.Square(0, 0, 1)}},
		testutil.Layer{Name: "b", Features: map[int64]geom.T{1: testutil.Square(0, 0, 1)}},
	)
	empty := filepath.Join(dir, "empty.gpkg")
	testutil.WriteGeoPackage(t, empty)

	for _, path := range []string{multi, empty} {
		s, err := vector.Open(ctx, path)
		require.NoError(t, err)
		_, err = s.Describe(ctx)
		assert.True(t, errors.Is(err, failure.ErrConfiguration), "%s: %v", path, err)
		require.NoError(t, s.Close())
	}
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := vector.Open(testutil.Context(t), filepath.Join(t.TempDir(), "nope.gpkg"))
	assert.True(t, errors.Is(err, failure.ErrConfiguration))
}

func TestBlob_RoundTrip(t *testing.T) {
	sq := testutil.Square(3, 4, 2)
	b, err := vector.EncodeBlob(sq, 4326)
	require.NoError(t, err)
	assert.Equal(t, "GP", string(b[:2]))

	g, err := vector.DecodeBlob(b)
	require.NoError(t, err)
	assert.Equal(t, sq.FlatCoords(), g.FlatCoords())

	_, err = vector.DecodeBlob([]byte("xx"))
	assert.True(t, errors.Is(err, failure.ErrGeometry))

	empty := append([]byte(nil), b...)
	empty[3] |= 1 << 4
	_, err = vector.DecodeBlob(empty)
	assert.ErrorContains(t, err, "empty")
}

func TestPool_OneStorePerSlot(t *testing.T) {
	ctx := testutil.Context(t)
	path := filepath.Join(t.TempDir(), "basins.gpkg")
	testutil.WriteGeoPackage(t, path, testutil.Layer{Name: "basins", Features: map[int64]geom.T{1: testutil.Square(0, 0, 1)}})

	p := vector.NewPool(path, ctxlog.FromContext(ctx))
	a, err := p.Get(ctx, 0)
	require.NoError(t, err)
	again, err := p.Get(ctx, 0)
	require.NoError(t, err)
	b, err := p.Get(ctx, 1)
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, p.Len())
	require.NoError(t, p.Close())
	assert.Equal(t, 0, p.Len())
}

func TestPool_StoresLogThroughPoolLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	var poolLog, taskLog testutil.SafeBuffer
	poolCtx := testutil.ContextWithLog(context.Background(), &poolLog)
	taskCtx := ctxlog.With(testutil.ContextWithLog(context.Background(), &taskLog), "task", "extract_1")

	p := vector.NewPool(path, ctxlog.FromContext(poolCtx))
	t.Cleanup(func() { _ = p.Close() })
	s, err := p.Get(taskCtx, 0)
	require.NoError(t, err)

	_, err = s.Describe(taskCtx)
	assert.True(t, errors.Is(err, failure.ErrConfiguration))
	assert.Contains(t, poolLog.String(), "gpkg_contents")
	assert.NotContains(t, poolLog.String(), "extract_1")
	assert.Empty(t, taskLog.String())
}
