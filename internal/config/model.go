package config

import (
	"runtime"
	"time"
)

// Defaults applied when the file leaves an attribute out.
const (
	DefaultCatalogRoot        = "stac-catalog"
	DefaultCatalogID          = "dem-tiles"
	DefaultCatalogDescription = "Hydrologically conditioned DEM tiles."
	DefaultPollInterval       = 5 * time.Second
	IndexFileName             = "index.msgpack"
	FailureReportFileName     = "failures.json"
)

// Model is the resolved configuration of a run. All paths are absolute.
type Model struct {
	SourceDEMPath      string
	SourceVectorPath   string
	WorkspaceRoot      string
	CatalogRoot        string
	CatalogID          string
	CatalogDescription string
	WorkerCount        int
	PollInterval       time.Duration
	// Collections are kept in file order.
	Collections []Collection
}

// Collection selects the rasters of one catalog collection.
type Collection struct {
	FilePrefix  string
	ID          string
	Description string
}

// DefaultCollections are used when the file declares none.
func DefaultCollections() []Collection {
	return []Collection{
		{FilePrefix: "filled_dem", ID: "filled", Description: "Depression filled dem."},
		{FilePrefix: "flow_dir_mfd", ID: "flow_dir_mfd", Description: "MFD routed dem."},
	}
}

func defaultWorkers() int { return runtime.NumCPU() }
