package config

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
	"github.com/specialistvlad/hydroshard/internal/failure"
)

// fileRoot mirrors the attributes and blocks of a config file.
type fileRoot struct {
	SourceDEMPath      string             `hcl:"source_dem_path"`
	SourceVectorPath   string             `hcl:"source_vector_path"`
	WorkspaceRoot      string             `hcl:"workspace_root"`
	CatalogRoot        *string            `hcl:"catalog_root,optional"`
	CatalogID          *string            `hcl:"catalog_id,optional"`
	CatalogDescription *string            `hcl:"catalog_description,optional"`
	WorkerCount        *int               `hcl:"worker_count,optional"`
	PollInterval       *string            `hcl:"poll_interval,optional"`
	Collections        []*collectionBlock `hcl:"collection,block"`
}

type collectionBlock struct {
	FilePrefix  string `hcl:"prefix,label"`
	ID          string `hcl:"id"`
	Description string `hcl:"description,optional"`
}

// Load reads and resolves the config file at path.
func Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, failure.Configurationf("failed to parse HCL file %s: %w", path, diags)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, failure.Configurationf("resolving %s: %w", path, err)
	}
	model, err := decode(file.Body, filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	logger.Debug("HCL loading complete.", "workers", model.WorkerCount, "collections", len(model.Collections))
	return model, nil
}

// Parse resolves config source held in memory. Relative paths are anchored
// at baseDir.
func Parse(src []byte, filename, baseDir string) (*Model, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, failure.Configurationf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decode(file.Body, baseDir)
}

func decode(body hcl.Body, baseDir string) (*Model, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, evalContext(), &root); diags.HasErrors() {
		return nil, failure.Configurationf("failed to decode configuration: %w", diags)
	}

	m := &Model{
		SourceDEMPath:      resolve(baseDir, root.SourceDEMPath),
		SourceVectorPath:   resolve(baseDir, root.SourceVectorPath),
		WorkspaceRoot:      resolve(baseDir, root.WorkspaceRoot),
		CatalogRoot:        resolve(baseDir, valueOr(root.CatalogRoot, DefaultCatalogRoot)),
		CatalogID:          valueOr(root.CatalogID, DefaultCatalogID),
		CatalogDescription: valueOr(root.CatalogDescription, DefaultCatalogDescription),
		WorkerCount:        valueOr(root.WorkerCount, defaultWorkers()),
		PollInterval:       DefaultPollInterval,
	}

	if root.PollInterval != nil {
		d, err := time.ParseDuration(*root.PollInterval)
		if err != nil {
			return nil, failure.Configurationf("poll_interval: %w", err)
		}
		m.PollInterval = d
	}

	for _, c := range root.Collections {
		m.Collections = append(m.Collections, Collection{FilePrefix: c.FilePrefix, ID: c.ID, Description: c.Description})
	}
	if len(m.Collections) == 0 {
		m.Collections = DefaultCollections()
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the model for values no run can use.
func (m *Model) Validate() error {
	required := []struct{ name, value string }{
		{"source_dem_path", m.SourceDEMPath},
		{"source_vector_path", m.SourceVectorPath},
		{"workspace_root", m.WorkspaceRoot},
		{"catalog_root", m.CatalogRoot},
		{"catalog_id", m.CatalogID},
	}
	for _, r := range required {
		if r.value == "" {
			return failure.Configurationf("%s must not be empty", r.name)
		}
	}
	if m.WorkerCount < 1 {
		return failure.Configurationf("worker_count must be at least 1, got %d", m.WorkerCount)
	}
	if m.PollInterval <= 0 {
		return failure.Configurationf("poll_interval must be positive, got %s", m.PollInterval)
	}

	seen := make(map[string]bool)
	for _, c := range m.Collections {
		if c.FilePrefix == "" || c.ID == "" {
			return failure.Configurationf("collection %q: prefix and id must not be empty", c.ID)
		}
		if !isPathElement(c.ID) {
			return failure.Configurationf("collection id %q must be a single directory name", c.ID)
		}
		if seen[c.ID] {
			return failure.Configurationf("collection id %q declared twice", c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// isPathElement reports whether name names exactly one directory entry.
func isPathElement(name string) bool {
	return name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) &&
		filepath.Clean(name) == name && !filepath.IsAbs(name) && filepath.VolumeName(name) == ""
}

// IndexPath is where the routing index is written.
func (m *Model) IndexPath() string { return filepath.Join(m.WorkspaceRoot, IndexFileName) }

// FailureReportPath is where the failure report is written.
func (m *Model) FailureReportPath() string {
	return filepath.Join(m.WorkspaceRoot, FailureReportFileName)
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
