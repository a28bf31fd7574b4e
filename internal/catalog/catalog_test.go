package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/specialistvlad/hydroshard/internal/raster"
	"github.com/specialistvlad/hydroshard/internal/shard"
	"github.com/specialistvlad/hydroshard/internal/testutil"
)

func writeTile(t *testing.T, root string, tileID int64, name string, col, row int) string {
	t.Helper()
	h := testutil.DEMHeader.Window(col, row, 8, 6)
	g := raster.New(h)
	for i := range g.Data {
		g.Data[i] = float64(i)
	}
	path := filepath.Join(shard.TileDir(root, "basins", tileID), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, raster.Write(path, g, raster.WriteOptions{Compress: true}))
	return path
}

type workspace struct {
	root, vec string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	_, vec := testutil.Workspace(t, dir, map[int64]geom.T{
		3:  testutil.Square(0.2, 0.2, 0.6),
		12: testutil.Square(1.5, 2.0, 0.8),
	})
	root := filepath.Join(dir, "workspace")
	writeTile(t, root, 12, "filled_dem_12.tif", 15, 10)
	writeTile(t, root, 3, "filled_dem_3.tif", 2, 32)
	writeTile(t, root, 12, "flow_dir_mfd_12.tif", 15, 10)
	writeTile(t, root, 77, "filled_dem_77.tif", 0, 0)
	writeTile(t, root, 5, "filled_dem_abc.tif", 0, 0)
	return workspace{root: root, vec: vec}
}

func options(ws workspace) Options {
	return Options{
		WorkspaceRoot: ws.root,
		VectorPath:    ws.vec,
		ID:            "dem-basins",
		Description:   "test catalog",
		Collections: []CollectionDef{
			{FilePrefix: "filled_dem", ID: "filled", Description: "Depression filled dem."},
			{FilePrefix: "flow_dir_mfd", ID: "flow_dir_mfd", Description: "MFD routed dem."},
			{FilePrefix: "nothing", ID: "empty", Description: "No rasters."},
		},
		Workers:  3,
		Datetime: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuild_BBoxMatchesRasterHeader(t *testing.T) {
	ws := newWorkspace(t)
	cat, err := Build(testutil.Context(t), options(ws))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"filled": 2, "flow_dir_mfd": 1, "empty": 0}, cat.ItemCounts())

	filled := cat.Collections[0]
	require.Len(t, filled.Items, 2)
	assert.Equal(t, int64(3), filled.Items[0].TileID, "items are sorted by tile id")
	assert.Equal(t, int64(12), filled.Items[1].TileID)
	assert.Equal(t, "filled_dem_12", filled.Items[1].ID)

	for _, col := range cat.Collections {
		for _, it := range col.Items {
			h, err := raster.ReadHeader(it.AssetPath)
			require.NoError(t, err)
			want := h.Bounds()
			for i := range want {
				assert.InDelta(t, want[i], it.BBox[i], 1e-9, "%s bbox[%d]", it.ID, i)
			}
		}
	}

	assert.InDelta(t, 0.2, filled.Extent[0], 1e-9)
	assert.InDelta(t, 1.5+0.8, filled.Extent[2], 1e-9)
	assert.Equal(t, globalExtent, cat.Collections[2].Extent)
}

func TestBuild_ItemGeometryComesFromVectorStore(t *testing.T) {
	ws := newWorkspace(t)
	cat, err := Build(testutil.Context(t), options(ws))
	require.NoError(t, err)

	var g struct {
		Type        string        `json:"type"`
		Coordinates [][][]float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(cat.Collections[0].Items[0].Geometry, &g))
	assert.Equal(t, "Polygon", g.Type)
	require.Len(t, g.Coordinates, 1)
	assert.Equal(t, []float64{0.2, 0.2}, g.Coordinates[0][0])
}

func TestBuild_MissingVectorStoreFails(t *testing.T) {
	ws := newWorkspace(t)
	opts := options(ws)
	opts.VectorPath = filepath.Join(t.TempDir(), "missing.gpkg")
	_, err := Build(testutil.Context(t), opts)
	assert.Error(t, err)
}

func TestSave_RelativeLayout(t *testing.T) {
	ws := newWorkspace(t)
	cat, err := Build(testutil.Context(t), options(ws))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "stac-catalog")
	stale := filepath.Join(out, "filled", "99", "filled_dem_99.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))

	require.NoError(t, cat.Save(out))
	assert.NoFileExists(t, stale, "collection directories are replaced")

	var root stacCatalog
	readJSON(t, filepath.Join(out, "catalog.json"), &root)
	assert.Equal(t, "Catalog", root.Type)
	assert.Equal(t, "1.0.0", root.StacVersion)
	var children []string
	for _, l := range root.Links {
		if l.Rel == "child" {
			children = append(children, l.Href)
		}
	}
	assert.Equal(t, []string{"./filled/collection.json", "./flow_dir_mfd/collection.json", "./empty/collection.json"}, children)

	var col stacCollection
	readJSON(t, filepath.Join(out, "filled", "collection.json"), &col)
	assert.Equal(t, "filled", col.ID)
	var items []string
	for _, l := range col.Links {
		assert.False(t, filepath.IsAbs(l.Href), l.Href)
		if l.Rel == "item" {
			items = append(items, l.Href)
		}
	}
	assert.Equal(t, []string{"./3/filled_dem_3.json", "./12/filled_dem_12.json"}, items)

	itemPath := filepath.Join(out, "filled", "12", "filled_dem_12.json")
	var item stacItem
	readJSON(t, itemPath, &item)
	assert.Equal(t, "filled", item.Collection)
	assert.Equal(t, "2024-05-01T00:00:00Z", item.Properties["datetime"])

	href := item.Assets["data"].Href
	assert.False(t, filepath.IsAbs(href))
	assert.FileExists(t, filepath.Join(filepath.Dir(itemPath), filepath.FromSlash(href)))
}

func TestSave_RemovesDroppedCollections(t *testing.T) {
	out := filepath.Join(t.TempDir(), "stac-catalog")
	dropped := filepath.Join(out, "old", "collection.json")
	unrelated := filepath.Join(out, "notes", "readme.txt")
	for _, p := range []string{dropped, unrelated} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
	}

	cat := &Catalog{ID: "dem-tiles", Collections: []Collection{{ID: "filled", Extent: globalExtent}}}
	require.NoError(t, cat.Save(out))

	assert.NoDirExists(t, filepath.Join(out, "old"))
	assert.FileExists(t, unrelated)
	assert.FileExists(t, filepath.Join(out, "filled", "collection.json"))
}

func TestSave_RejectsCollectionIDOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	sibling := filepath.Join(dir, "workspace", "index.msgpack")
	require.NoError(t, os.MkdirAll(filepath.Dir(sibling), 0o755))
	require.NoError(t, os.WriteFile(sibling, []byte("x"), 0o644))
	out := filepath.Join(dir, "stac-catalog")

	for _, id := range []string{"..", ".", "../workspace", "a/b"} {
		t.Run(id, func(t *testing.T) {
			cat := &Catalog{ID: "dem-tiles", Collections: []Collection{{ID: id, Extent: globalExtent}}}
			assert.ErrorContains(t, cat.Save(out), "does not name a directory inside")
			assert.FileExists(t, sibling)
		})
	}
}

func TestTileIDOf(t *testing.T) {
	id, err := TileIDOf("flow_dir_mfd_1042")
	require.NoError(t, err)
	assert.Equal(t, int64(1042), id)

	for _, stem := range []string{"filled_dem_abc", "filled", "filled_dem_"} {
		_, err := TileIDOf(stem)
		assert.Error(t, err, stem)
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}
