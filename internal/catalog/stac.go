package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/fsutil"
)

const (
	stacVersion  = "1.0.0"
	jsonMedia    = "application/json"
	geotiffMedia = "image/tiff; application=geotiff"
)

type link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

type stacCatalog struct {
	Type        string `json:"type"`
	StacVersion string `json:"stac_version"`
	ID          string `json:"id"`
	Description string `json:"description"`
	Links       []link `json:"links"`
}

type stacExtent struct {
	Spatial struct {
		BBox [][4]float64 `json:"bbox"`
	} `json:"spatial"`
	Temporal struct {
		Interval [][2]*string `json:"interval"`
	} `json:"temporal"`
}

type stacCollection struct {
	Type        string     `json:"type"`
	StacVersion string     `json:"stac_version"`
	ID          string     `json:"id"`
	Description string     `json:"description"`
	License     string     `json:"license"`
	Extent      stacExtent `json:"extent"`
	Links       []link     `json:"links"`
}

type stacAsset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type"`
	Roles []string `json:"roles"`
}

type stacItem struct {
	Type        string               `json:"type"`
	StacVersion string               `json:"stac_version"`
	ID          string               `json:"id"`
	Geometry    json.RawMessage      `json:"geometry"`
	BBox        [4]float64           `json:"bbox"`
	Properties  map[string]any       `json:"properties"`
	Links       []link               `json:"links"`
	Assets      map[string]stacAsset `json:"assets"`
	Collection  string               `json:"collection"`
}

// Save writes the catalog under dir:
//
//	catalog.json
//	<collection>/collection.json
//	<collection>/<tile_id>/<item_id>.json
//
// Every href is relative to the file that contains it. Collection
// directories left by an earlier save are replaced, and those of collections
// no longer in the catalog are removed. Other entries of dir are kept.
func (c *Catalog) Save(dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving catalog root: %w", err)
	}

	rootDoc := stacCatalog{
		Type:        "Catalog",
		StacVersion: stacVersion,
		ID:          c.ID,
		Description: c.Description,
		Links:       []link{{Rel: "root", Href: "./catalog.json", Type: jsonMedia}},
	}
	for _, col := range c.Collections {
		rootDoc.Links = append(rootDoc.Links, link{Rel: "child", Href: "./" + col.ID + "/collection.json", Type: jsonMedia, Title: col.Description})
		if err := saveCollection(root, col); err != nil {
			return err
		}
	}
	if err := pruneCollections(root, c.Collections); err != nil {
		return err
	}
	return writeJSON(filepath.Join(root, "catalog.json"), rootDoc)
}

// pruneCollections removes collection directories under root that no
// collection of keep owns. Only directories holding a collection.json count.
func pruneCollections(root string, keep []Collection) error {
	owned := make(map[string]bool, len(keep))
	for _, col := range keep {
		owned[col.ID] = true
	}
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return failure.IO("list catalog", root, err)
	}
	for _, e := range entries {
		if !e.IsDir() || owned[e.Name()] {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, "collection.json")); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return failure.IO("remove stale collection", dir, err)
		}
	}
	return nil
}

func saveCollection(root string, col Collection) error {
	colDir := filepath.Join(root, col.ID)
	if filepath.Dir(colDir) != root || filepath.Base(colDir) != col.ID {
		return fmt.Errorf("collection id %q does not name a directory inside %s", col.ID, root)
	}
	if err := os.RemoveAll(colDir); err != nil {
		return failure.IO("replace collection", colDir, err)
	}

	doc := stacCollection{
		Type:        "Collection",
		StacVersion: stacVersion,
		ID:          col.ID,
		Description: col.Description,
		License:     "proprietary",
		Links: []link{
			{Rel: "root", Href: "../catalog.json", Type: jsonMedia},
			{Rel: "parent", Href: "../catalog.json", Type: jsonMedia},
		},
	}
	doc.Extent.Spatial.BBox = [][4]float64{col.Extent}
	doc.Extent.Temporal.Interval = [][2]*string{{nil, nil}}

	for _, it := range col.Items {
		tileDir := strconv.FormatInt(it.TileID, 10)
		itemPath := filepath.Join(colDir, tileDir, it.ID+".json")
		assetHref, err := filepath.Rel(filepath.Dir(itemPath), it.AssetPath)
		if err != nil {
			return fmt.Errorf("relative asset path for %s: %w", it.ID, err)
		}
		item := stacItem{
			Type:        "Feature",
			StacVersion: stacVersion,
			ID:          it.ID,
			Geometry:    it.Geometry,
			BBox:        it.BBox,
			Properties:  map[string]any{"datetime": it.Datetime.Format(time.RFC3339)},
			Links: []link{
				{Rel: "root", Href: "../../catalog.json", Type: jsonMedia},
				{Rel: "parent", Href: "../collection.json", Type: jsonMedia},
				{Rel: "collection", Href: "../collection.json", Type: jsonMedia},
			},
			Assets: map[string]stacAsset{
				"data": {Href: filepath.ToSlash(assetHref), Type: geotiffMedia, Roles: []string{"data"}},
			},
			Collection: col.ID,
		}
		if err := writeJSON(itemPath, item); err != nil {
			return err
		}
		doc.Links = append(doc.Links, link{Rel: "item", Href: "./" + path.Join(tileDir, it.ID+".json"), Type: jsonMedia})
	}
	return writeJSON(filepath.Join(colDir, "collection.json"), doc)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return failure.IO("write catalog", path, fsutil.WriteFileAtomic(path, append(b, '\n'), 0o644))
}
