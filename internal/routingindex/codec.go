package routingindex

import (
	"fmt"
	"os"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/fsutil"
)

// wireIndex is the on-disk form. Entries are sorted by tile id so the same
// index always encodes to the same bytes.
type wireIndex struct {
	SourceDEM          string      `msgpack:"source_dem"`
	SourceSubwatershed string      `msgpack:"source_subwatershed"`
	RoutingIndex       []wireEntry `msgpack:"subwatershed_routing_index"`
}

type wireEntry struct {
	TileID int64  `msgpack:"tile_id"`
	Path   string `msgpack:"path"`
}

// Marshal encodes an index.
func Marshal(ix Index) ([]byte, error) {
	w := wireIndex{
		SourceDEM:          ix.SourceDEMPath,
		SourceSubwatershed: ix.SourceVectorPath,
		RoutingIndex:       make([]wireEntry, 0, len(ix.mapping)),
	}
	for id, p := range ix.mapping {
		w.RoutingIndex = append(w.RoutingIndex, wireEntry{TileID: id, Path: p})
	}
	sort.Slice(w.RoutingIndex, func(i, j int) bool { return w.RoutingIndex[i].TileID < w.RoutingIndex[j].TileID })
	return msgpack.Marshal(&w)
}

// Unmarshal decodes an index.
func Unmarshal(b []byte) (Index, error) {
	var w wireIndex
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Index{}, err
	}
	ix := Index{SourceDEMPath: w.SourceDEM, SourceVectorPath: w.SourceSubwatershed, mapping: make(map[int64]string, len(w.RoutingIndex))}
	for _, e := range w.RoutingIndex {
		if _, dup := ix.mapping[e.TileID]; dup {
			return Index{}, fmt.Errorf("tile %d appears twice", e.TileID)
		}
		ix.mapping[e.TileID] = e.Path
	}
	return ix, nil
}

// Save writes the index to path atomically.
func Save(path string, ix Index) error {
	b, err := Marshal(ix)
	if err != nil {
		return fmt.Errorf("encoding routing index: %w", err)
	}
	return failure.IO("save routing index", path, fsutil.WriteFileAtomic(path, b, 0o644))
}

// Load reads an index written by Save.
func Load(path string) (Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Index{}, failure.IO("load routing index", path, err)
	}
	ix, err := Unmarshal(b)
	if err != nil {
		return Index{}, failure.IO("load routing index", path, err)
	}
	return ix, nil
}
