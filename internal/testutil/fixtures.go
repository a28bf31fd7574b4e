package testutil

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/specialistvlad/hydroshard/internal/raster"
	"github.com/specialistvlad/hydroshard/internal/vector"
)

// Layer is one feature table of a fixture GeoPackage.
type Layer struct {
	Name string
	// GeometryColumn defaults to "geom".
	GeometryColumn string
	Features       map[int64]geom.T
}

// WriteGeoPackage creates a minimal GeoPackage at path holding the given
// feature layers.
func WriteGeoPackage(t testing.TB, path string, layers ...Layer) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, db.Exec(`CREATE TABLE gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT,
		srs_id INTEGER)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL)`).Error)

	for _, l := range layers {
		col := l.GeometryColumn
		if col == "" {
			col = "geom"
		}
		require.NoError(t, db.Exec(
			`INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES (?, 'features', ?, 4326)`,
			l.Name, l.Name).Error)
		require.NoError(t, db.Exec(
			`INSERT INTO gpkg_geometry_columns VALUES (?, ?, 'MULTIPOLYGON', 4326, 0, 0)`,
			l.Name, col).Error)
		require.NoError(t, db.Exec(fmt.Sprintf(
			`CREATE TABLE %q (fid INTEGER PRIMARY KEY AUTOINCREMENT, %q BLOB, name TEXT)`, l.Name, col)).Error)

		ids := make([]int64, 0, len(l.Features))
		for id := range l.Features {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			blob, err := vector.EncodeBlob(l.Features[id], 4326)
			require.NoError(t, err)
			require.NoError(t, db.Exec(fmt.Sprintf(`INSERT INTO %q (fid, %q, name) VALUES (?, ?, ?)`, l.Name, col),
				id, blob, fmt.Sprintf("basin %d", id)).Error)
		}
	}
}

// Square returns an axis-aligned square polygon with its lower-left corner
// at (x, y).
func Square(x, y, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x, y, x + size, y, x + size, y + size, x, y + size, x, y,
	}, []int{10})
}

// Bowtie returns a self-intersecting ring inside the square at (x, y) that
// no repair can make valid without changing its footprint.
func Bowtie(x, y, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x, y, x + size, y + size, x + size, y, x, y + size/2, x, y,
	}, []int{10})
}

// DEMHeader is the georeferencing of the fixture DEM: 40×40 cells of 0.1°
// covering [0, 4] × [0, 4] in EPSG:4326.
var DEMHeader = raster.Header{
	Width:        40,
	Height:       40,
	GeoTransform: [6]float64{0, 0.1, 0, 4, 0, -0.1},
	EPSG:         4326,
	NoData:       raster.NoData,
	HasNoData:    true,
	Type:         raster.Float32,
}

// WriteDEM writes a sloping DEM with a few single-cell pits at path and
// returns the grid that was written.
func WriteDEM(t testing.TB, path string) *raster.Grid {
	t.Helper()
	g := raster.New(DEMHeader)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x, y := g.PixelCenter(col, row)
			z := 100 + 10*x + 5*y + 2*math.Sin(3*x)*math.Cos(2*y)
			g.Set(col, row, math.Round(z*100)/100)
		}
	}
	for _, pit := range [][2]int{{10, 30}, {30, 10}, {25, 25}, {7, 12}} {
		g.Set(pit[0], pit[1], 50)
	}
	require.NoError(t, raster.Write(path, g, raster.WriteOptions{Compress: true}))
	return g
}

// Workspace lays out a source DEM and a single-layer GeoPackage under dir and
// returns their paths.
func Workspace(t testing.TB, dir string, features map[int64]geom.T) (demPath, vectorPath string) {
	t.Helper()
	demPath = filepath.Join(dir, "dem.tif")
	vectorPath = filepath.Join(dir, "basins.gpkg")
	WriteDEM(t, demPath)
	WriteGeoPackage(t, vectorPath, Layer{Name: "basins", Features: features})
	return demPath, vectorPath
}
