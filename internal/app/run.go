package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/specialistvlad/hydroshard/internal/catalog"
	"github.com/specialistvlad/hydroshard/internal/ctxlog"
	"github.com/specialistvlad/hydroshard/internal/dag"
	"github.com/specialistvlad/hydroshard/internal/executor"
	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/pipeline"
	"github.com/specialistvlad/hydroshard/internal/routingindex"
	"github.com/specialistvlad/hydroshard/internal/taskstore"
	"github.com/specialistvlad/hydroshard/internal/telemetry"
	"github.com/specialistvlad/hydroshard/internal/vector"
)

// Result is what a finished run produced.
type Result struct {
	RunID string
	// Index and Report are empty in catalog-only mode.
	Index   routingindex.Index
	Report  pipeline.Report
	Summary *executor.Summary
	// Catalog is nil when the catalog was skipped.
	Catalog *catalog.Catalog
}

// FailedTiles returns the number of tiles in the failure report.
func (r *Result) FailedTiles() int { return len(r.Report.Failures) }

// Run executes the main application logic. Tile failures do not make Run
// fail; they are listed in Result.Report and in the failure report file.
func (a *App) Run(ctx context.Context) (*Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	if a.config.Trace {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{RunID: a.runID, Writer: a.outW})
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				a.logger.Warn("Flushing traces failed.", "error", err)
			}
		}()
	}

	res := &Result{RunID: a.runID}
	if !a.config.CatalogOnly {
		if err := a.process(ctx, res); err != nil {
			return res, err
		}
	}
	if !a.config.SkipCatalog {
		if err := a.buildCatalog(ctx, res); err != nil {
			return res, err
		}
	}

	a.logger.Debug("App.Run method finished.")
	return res, nil
}

// process runs every tile through the pipeline, then persists the routing
// index and the failure report.
func (a *App) process(ctx context.Context, res *Result) error {
	m := a.model
	tileIDs, err := a.enumerate(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.WorkspaceRoot, 0o755); err != nil {
		return failure.IO("create workspace", m.WorkspaceRoot, err)
	}

	pool := vector.NewPool(m.SourceVectorPath, a.logger)
	defer func() {
		if err := pool.Close(); err != nil {
			a.logger.Warn("Closing vector stores failed.", "error", err)
		}
	}()
	acc := routingindex.NewAccumulator(m.SourceDEMPath, m.SourceVectorPath)

	builder := pipeline.NewBuilder(pipeline.Config{
		WorkspaceRoot: m.WorkspaceRoot,
		DEMPath:       m.SourceDEMPath,
		VectorPath:    m.SourceVectorPath,
		Vectors:       pool,
		Primitives:    a.primitives,
		Index:         acc,
	})
	graph := dag.New()
	if err := builder.Build(graph, tileIDs); err != nil {
		acc.Freeze()
		return err
	}
	a.logger.Debug("Task graph built.", "tiles", len(tileIDs), "tasks", graph.Len())

	exec := executor.New(graph, taskstore.New(), executor.Options{
		Workers:      m.WorkerCount,
		PollInterval: m.PollInterval,
		Observer:     a.metrics,
	})
	summary, runErr := exec.Run(ctx)
	index := acc.Freeze()
	res.Summary = summary
	if runErr != nil {
		return runErr
	}

	if err := a.saveIndex(ctx, index); err != nil {
		return err
	}
	res.Index = index

	res.Report = pipeline.NewReport(a.runID, summary.Failures)
	if err := res.Report.Save(m.FailureReportPath()); err != nil {
		return err
	}
	a.metrics.failedTiles.Set(float64(len(res.Report.Failures)))
	if n := len(res.Report.Failures); n > 0 {
		a.logger.Warn("⚠️ Some tiles failed.", "count", n, "report", m.FailureReportPath(), "tiles", res.Report.TileIDs())
	}
	return nil
}

// enumerate checks the inputs and lists the tiles of the vector store.
func (a *App) enumerate(ctx context.Context) ([]int64, error) {
	m := a.model
	if _, err := os.Stat(m.SourceDEMPath); err != nil {
		return nil, failure.Configurationf("source DEM %s: %w", m.SourceDEMPath, err)
	}
	store, err := vector.Open(ctx, m.SourceVectorPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	layer, err := store.Describe(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := store.FeatureIDs(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("🧭 Tiles enumerated.", "layer", layer.Name, "tiles", len(ids))
	return ids, nil
}

// saveIndex writes the frozen index, reads it back and checks it survived
// the round trip.
func (a *App) saveIndex(ctx context.Context, index routingindex.Index) error {
	path := a.model.IndexPath()
	if err := routingindex.Save(path, index); err != nil {
		return err
	}
	reloaded, err := routingindex.Load(path)
	if err != nil {
		return err
	}
	if reloaded.Len() != index.Len() {
		return failure.IO("verify routing index", path,
			fmt.Errorf("wrote %d entries, read back %d", index.Len(), reloaded.Len()))
	}
	a.metrics.indexEntries.Set(float64(index.Len()))
	ctxlog.FromContext(ctx).Info("🗂️ Routing index saved.", "path", path, "entries", reloaded.Len())
	return nil
}

func (a *App) buildCatalog(ctx context.Context, res *Result) error {
	m := a.model
	if _, err := os.Stat(m.WorkspaceRoot); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return failure.Configurationf("workspace %s does not exist", m.WorkspaceRoot)
		}
		return failure.IO("catalog", m.WorkspaceRoot, err)
	}

	defs := make([]catalog.CollectionDef, len(m.Collections))
	for i, c := range m.Collections {
		defs[i] = catalog.CollectionDef{FilePrefix: c.FilePrefix, ID: c.ID, Description: c.Description}
	}
	cat, err := catalog.Build(ctx, catalog.Options{
		WorkspaceRoot: m.WorkspaceRoot,
		VectorPath:    m.SourceVectorPath,
		ID:            m.CatalogID,
		Description:   m.CatalogDescription,
		Collections:   defs,
		Workers:       m.WorkerCount,
	})
	if err != nil {
		return fmt.Errorf("building catalog: %w", err)
	}
	if err := cat.Save(m.CatalogRoot); err != nil {
		return fmt.Errorf("saving catalog: %w", err)
	}
	for id, n := range cat.ItemCounts() {
		a.metrics.catalogItems.WithLabelValues(id).Set(float64(n))
	}
	a.logger.Info("📚 Catalog saved.", "path", m.CatalogRoot, "items", cat.ItemCounts())
	res.Catalog = cat
	return nil
}
