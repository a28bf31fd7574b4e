// Package vector reads tile footprints from a GeoPackage.
//
// A GeoPackage is an SQLite database, so the store is a read-only gorm
// connection. The package knows just enough of the GeoPackage layout to find
// the single feature layer, list its ids and decode one geometry at a time:
// geometries are never cached, every caller fetches what it needs.
package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/twpayne/go-geom"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
	"github.com/specialistvlad/hydroshard/internal/failure"
)

const (
	defaultGeometryColumn = "geom"
	defaultFIDColumn      = "fid"
)

// Layer identifies the feature table and the columns the pipeline reads.
type Layer struct {
	Name           string
	GeometryColumn string
	FIDColumn      string
}

// Store is a read-only handle on one GeoPackage. A Store is not meant to be
// shared between workers; use a Pool to give each worker its own.
type Store struct {
	path string
	db   *gorm.DB

	mu    sync.Mutex
	layer *Layer
}

// Open connects to the GeoPackage at path in read-only mode.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, failure.Configurationf("vector store %s: %w", path, err)
	}

	gormLog := gormLogger.New(
		slog.NewLogLogger(ctxlog.FromContext(ctx).Handler(), slog.LevelWarn),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(sqlite.Open("file:"+path+"?mode=ro"), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, failure.IO("open vector store", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, failure.IO("open vector store", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &Store{path: path, db: db}, nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string { return s.path }

// Close releases the connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Describe resolves the store's single feature layer. Zero or several feature
// layers are configuration errors. The result is cached on the store.
func (s *Store) Describe(ctx context.Context) (Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layer != nil {
		return *s.layer, nil
	}

	if err := ctx.Err(); err != nil {
		return Layer{}, err
	}
	db := s.db.WithContext(ctx)
	var names []string
	err := db.Raw(`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name`).
		Scan(&names).Error
	if err != nil {
		return Layer{}, failure.Configurationf("%s is not a geopackage: %w", s.path, err)
	}
	switch len(names) {
	case 0:
		return Layer{}, failure.Configurationf("%s has no feature layer", s.path)
	case 1:
	default:
		return Layer{}, failure.Configurationf("%s has %d feature layers (%s), expected exactly one",
			s.path, len(names), strings.Join(names, ", "))
	}

	layer := Layer{Name: names[0], GeometryColumn: defaultGeometryColumn, FIDColumn: defaultFIDColumn}

	var geomCols []string
	if err := db.Raw(`SELECT column_name FROM gpkg_geometry_columns WHERE table_name = ?`, layer.Name).
		Scan(&geomCols).Error; err != nil {
		return Layer{}, failure.IO("describe layer", s.path, err)
	}
	if len(geomCols) > 0 && geomCols[0] != "" {
		layer.GeometryColumn = geomCols[0]
	}

	var pks []string
	if err := db.Raw(`SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, layer.Name).
		Scan(&pks).Error; err != nil {
		return Layer{}, failure.IO("describe layer", s.path, err)
	}
	if len(pks) > 0 && pks[0] != "" {
		layer.FIDColumn = pks[0]
	}

	s.layer = &layer
	return layer, nil
}

// FeatureIDs lists every feature id of the layer in ascending order.
func (s *Store) FeatureIDs(ctx context.Context) ([]int64, error) {
	layer, err := s.Describe(ctx)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s`,
		quote(layer.FIDColumn), quote(layer.Name), quote(layer.FIDColumn))
	var ids []int64
	if err := s.db.WithContext(ctx).Raw(q).Scan(&ids).Error; err != nil {
		return nil, failure.IO("list features", s.path, err)
	}
	return ids, nil
}

// Geometry fetches and decodes the geometry of one feature. A missing
// feature or an empty geometry is a geometry error.
func (s *Store) Geometry(ctx context.Context, id int64) (geom.T, error) {
	layer, err := s.Describe(ctx)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
		quote(layer.GeometryColumn), quote(layer.Name), quote(layer.FIDColumn))

	var blob []byte
	if err := s.db.WithContext(ctx).Raw(q, id).Row().Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, failure.Geometryf("feature %d not found in %s", id, layer.Name)
		}
		return nil, failure.IO("read feature", s.path, err)
	}
	if len(blob) == 0 {
		return nil, failure.Geometryf("feature %d has no geometry", id)
	}
	g, err := DecodeBlob(blob)
	if err != nil {
		return nil, fmt.Errorf("feature %d: %w", id, err)
	}
	return g, nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
