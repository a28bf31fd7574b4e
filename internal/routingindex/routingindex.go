// Package routingindex collects the flow direction raster of every finished
// tile into one index.
//
// The index has a single owner goroutine. Commit tasks running on any worker
// hand their entry over a channel; only the owner touches the map. Freeze
// closes the channel, waits for the owner to drain it and returns an
// immutable snapshot, which is what gets serialized. Nothing is written
// before the join, so the persisted index never names an unfinished tile.
package routingindex

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrFrozen is returned by Commit after Freeze.
var ErrFrozen = errors.New("routing index is frozen")

// Index maps tile ids to flow direction rasters, relative to the workspace
// root.
type Index struct {
	SourceDEMPath    string
	SourceVectorPath string
	mapping          map[int64]string
}

// New builds an index from an existing mapping. The map is copied.
func New(demPath, vectorPath string, mapping map[int64]string) Index {
	return Index{SourceDEMPath: demPath, SourceVectorPath: vectorPath, mapping: maps.Clone(mapping)}
}

// Entries returns a copy of the mapping.
func (ix Index) Entries() map[int64]string {
	out := maps.Clone(ix.mapping)
	if out == nil {
		out = map[int64]string{}
	}
	return out
}

// Lookup returns the raster of one tile.
func (ix Index) Lookup(tileID int64) (string, bool) {
	p, ok := ix.mapping[tileID]
	return p, ok
}

// Len returns the number of tiles in the index.
func (ix Index) Len() int { return len(ix.mapping) }

// TileIDs returns the indexed tile ids in ascending order.
func (ix Index) TileIDs() []int64 {
	return slices.Sorted(maps.Keys(ix.mapping))
}

type entry struct {
	tileID int64
	path   string
}

// Accumulator is the single owner of an index under construction.
type Accumulator struct {
	demPath    string
	vectorPath string

	commits chan entry
	done    chan struct{}
	mapping map[int64]string

	mu     sync.RWMutex
	frozen bool
	once   sync.Once
	index  Index
}

// NewAccumulator starts the owner goroutine.
func NewAccumulator(demPath, vectorPath string) *Accumulator {
	a := &Accumulator{
		demPath:    demPath,
		vectorPath: vectorPath,
		commits:    make(chan entry, 64),
		done:       make(chan struct{}),
		mapping:    make(map[int64]string),
	}
	go a.own()
	return a
}

func (a *Accumulator) own() {
	defer close(a.done)
	for e := range a.commits {
		a.mapping[e.tileID] = e.path
	}
}

// Commit records the flow direction raster of a tile.
func (a *Accumulator) Commit(tileID int64, relPath string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.frozen {
		return ErrFrozen
	}
	a.commits <- entry{tileID: tileID, path: relPath}
	return nil
}

// Freeze stops accepting commits and returns the final index. Further calls
// return the same index.
func (a *Accumulator) Freeze() Index {
	a.once.Do(func() {
		a.mu.Lock()
		a.frozen = true
		close(a.commits)
		a.mu.Unlock()

		<-a.done
		a.index = Index{SourceDEMPath: a.demPath, SourceVectorPath: a.vectorPath, mapping: a.mapping}
	})
	return a.index
}
