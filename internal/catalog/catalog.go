// Package catalog indexes the finished workspace as a STAC catalog.
//
// The catalog is derived, never edited: Build walks the workspace once per
// collection, turns every matching raster into an Item carrying the tile's
// geometry and the raster's own bounding box, and returns a read-only tree.
// Save writes that tree with relative links only, so the output directory can
// be moved or copied as a whole.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
	"github.com/specialistvlad/hydroshard/internal/fsutil"
	"github.com/specialistvlad/hydroshard/internal/geometry"
	"github.com/specialistvlad/hydroshard/internal/raster"
	"github.com/specialistvlad/hydroshard/internal/vector"
)

// CollectionDef selects the rasters of one collection by file name prefix.
type CollectionDef struct {
	FilePrefix  string
	ID          string
	Description string
}

// Options configures Build.
type Options struct {
	WorkspaceRoot string
	VectorPath    string
	ID            string
	Description   string
	Collections   []CollectionDef
	// Workers defaults to runtime.NumCPU(). Each worker opens its own
	// vector store handle.
	Workers int
	// Datetime stamps every item. Defaults to the time Build is called.
	Datetime time.Time
}

// Item is one raster of one tile.
type Item struct {
	ID       string
	TileID   int64
	Geometry json.RawMessage
	BBox     [4]float64
	// AssetPath is the absolute path of the raster.
	AssetPath string
	Datetime  time.Time
}

// Collection groups the items of one artifact kind.
type Collection struct {
	ID          string
	Description string
	Extent      [4]float64
	Items       []Item
}

// Catalog is the root of the tree.
type Catalog struct {
	ID          string
	Description string
	Collections []Collection
}

// ItemCounts returns the number of items per collection id.
func (c *Catalog) ItemCounts() map[string]int {
	out := make(map[string]int, len(c.Collections))
	for _, col := range c.Collections {
		out[col.ID] = len(col.Items)
	}
	return out
}

var globalExtent = [4]float64{-180, -90, 180, 90}

var rasterExtensions = []string{".tif", ".tiff"}

// Build assembles the catalog. Files whose tile id cannot be derived, whose
// feature is missing or whose header cannot be read are logged and skipped.
func Build(ctx context.Context, opts Options) (*Catalog, error) {
	logger := ctxlog.FromContext(ctx)
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Datetime.IsZero() {
		opts.Datetime = time.Now()
	}
	root, err := filepath.Abs(opts.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}

	cat := &Catalog{ID: opts.ID, Description: opts.Description}
	for _, def := range opts.Collections {
		files, err := fsutil.FindFiles(root, def.FilePrefix, rasterExtensions...)
		if err != nil {
			return nil, fmt.Errorf("walking workspace for %q: %w", def.FilePrefix, err)
		}
		logger.Info("🗂️ Building collection.", "collection", def.ID, "files", len(files))

		items, err := buildItems(ctx, opts, files)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", def.ID, err)
		}
		cat.Collections = append(cat.Collections, Collection{
			ID:          def.ID,
			Description: def.Description,
			Extent:      extentOf(items),
			Items:       items,
		})
	}
	return cat, nil
}

// buildItems fans the files out over opts.Workers goroutines. Results land in
// a slice indexed by file position; skipped files leave a nil slot.
func buildItems(ctx context.Context, opts Options, files []string) ([]Item, error) {
	results := make([]*Item, len(files))
	jobs := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range files {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers := min(opts.Workers, max(len(files), 1))
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			store, err := vector.Open(gctx, opts.VectorPath)
			if err != nil {
				return err
			}
			defer store.Close()
			for i := range jobs {
				item, err := buildItem(gctx, store, files[i], opts.Datetime)
				if err != nil {
					ctxlog.FromContext(gctx).Warn("Skipping raster.", "path", files[i], "error", err)
					continue
				}
				results[i] = item
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(results))
	for _, it := range results {
		if it != nil {
			items = append(items, *it)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].TileID != items[j].TileID {
			return items[i].TileID < items[j].TileID
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func buildItem(ctx context.Context, store *vector.Store, path string, dt time.Time) (*Item, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	tileID, err := TileIDOf(stem)
	if err != nil {
		return nil, err
	}
	g, err := store.Geometry(ctx, tileID)
	if err != nil {
		return nil, err
	}
	geoJSON, err := geometry.GeoJSON(g)
	if err != nil {
		return nil, err
	}
	h, err := raster.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	return &Item{
		ID:        stem,
		TileID:    tileID,
		Geometry:  geoJSON,
		BBox:      h.Bounds(),
		AssetPath: path,
		Datetime:  dt.UTC(),
	}, nil
}

// TileIDOf parses the trailing underscore-delimited token of a file stem.
func TileIDOf(stem string) (int64, error) {
	i := strings.LastIndexByte(stem, '_')
	if i < 0 || i == len(stem)-1 {
		return 0, fmt.Errorf("no tile id in %q", stem)
	}
	id, err := strconv.ParseInt(stem[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("no tile id in %q: %w", stem, err)
	}
	return id, nil
}

func extentOf(items []Item) [4]float64 {
	if len(items) == 0 {
		return globalExtent
	}
	ext := items[0].BBox
	for _, it := range items[1:] {
		ext[0] = min(ext[0], it.BBox[0])
		ext[1] = min(ext[1], it.BBox[1])
		ext[2] = max(ext[2], it.BBox[2])
		ext[3] = max(ext[3], it.BBox[3])
	}
	return ext
}
