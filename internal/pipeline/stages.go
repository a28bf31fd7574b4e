package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
	"github.com/specialistvlad/hydroshard/internal/executor"
	"github.com/specialistvlad/hydroshard/internal/failure"
	"github.com/specialistvlad/hydroshard/internal/geometry"
	"github.com/specialistvlad/hydroshard/internal/task"
)

func (b *Builder) extract(tileID int64, p TilePaths) task.Func {
	return func(ctx context.Context) error {
		slot := executor.WorkerID(ctx)
		if slot < 0 {
			return fmt.Errorf("extract tile %d: not running on an executor worker", tileID)
		}
		store, err := b.cfg.Vectors.Get(ctx, slot)
		if err != nil {
			return err
		}
		raw, err := store.Geometry(ctx, tileID)
		if err != nil {
			return err
		}
		cutline, err := geometry.Repair(raw)
		if err != nil {
			return fmt.Errorf("tile %d: %w", tileID, err)
		}
		if err := os.MkdirAll(p.Dir, 0o755); err != nil {
			return failure.IO("create tile directory", p.Dir, err)
		}
		ctxlog.FromContext(ctx).Debug("Clipping DEM.", "tile", tileID, "dst", p.Extracted)
		return b.cfg.Primitives.Clipper.Clip(ctx, b.cfg.DEMPath, cutline, p.Extracted)
	}
}

func (b *Builder) fill(p TilePaths) task.Func {
	return func(ctx context.Context) error {
		if err := b.cfg.Primitives.Filler.Fill(ctx, p.Extracted, p.Filled); err != nil {
			return err
		}
		if err := os.Remove(p.Extracted); err != nil && !errors.Is(err, os.ErrNotExist) {
			ctxlog.FromContext(ctx).Warn("Could not remove extracted DEM.", "path", p.Extracted, "error", err)
		}
		return nil
	}
}

func (b *Builder) route(p TilePaths) task.Func {
	return func(ctx context.Context) error {
		return b.cfg.Primitives.Router.Route(ctx, p.Filled, p.FlowDir)
	}
}

func (b *Builder) commit(tileID int64, p TilePaths) task.Func {
	return func(ctx context.Context) error {
		if _, err := os.Stat(p.FlowDir); err != nil {
			return failure.IO("commit tile", p.FlowDir, err)
		}
		rel, err := filepath.Rel(b.cfg.WorkspaceRoot, p.FlowDir)
		if err != nil {
			return fmt.Errorf("relative flow direction path: %w", err)
		}
		if err := b.cfg.Index.Commit(tileID, filepath.ToSlash(rel)); err != nil {
			return fmt.Errorf("committing tile %d: %w", tileID, err)
		}
		return nil
	}
}
