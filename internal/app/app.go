package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/specialistvlad/hydroshard/internal/config"
	"github.com/specialistvlad/hydroshard/internal/ctxlog"
	"github.com/specialistvlad/hydroshard/internal/terrain"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	model      *config.Model
	runID      string
	primitives terrain.Primitives
	metrics    *metrics
	httpServer *http.Server
}

// Option customises an App.
type Option func(*App)

// WithPrimitives replaces the terrain primitives.
func WithPrimitives(p terrain.Primitives) Option {
	return func(a *App) { a.primitives = p }
}

// NewApp is the constructor for the main application. It loads the run
// configuration and returns a fully initialized App with its own isolated
// logger and metrics registry.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	runID := uuid.NewString()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW).With("run_id", runID)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := config.Load(ctx, cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.WorkerCount > 0 {
		model.WorkerCount = cfg.WorkerCount
	}
	logger.Debug("Configuration loaded.",
		"dem", model.SourceDEMPath,
		"vector", model.SourceVectorPath,
		"workspace", model.WorkspaceRoot,
		"workers", model.WorkerCount,
	)

	a := &App{
		ctx:        ctx,
		outW:       outW,
		logger:     logger,
		config:     cfg,
		model:      model,
		runID:      runID,
		primitives: terrain.Default(),
		metrics:    newMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// RunID identifies this run in logs, traces and the failure report.
func (a *App) RunID() string { return a.runID }

// Model returns the loaded run configuration.
func (a *App) Model() *config.Model { return a.model }
