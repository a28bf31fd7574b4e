package app

import "errors"

// Config holds the process-level settings of an App. What the run processes
// comes from the HCL file at ConfigPath.
type Config struct {
	ConfigPath string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// WorkerCount overrides worker_count from the file when positive.
	WorkerCount int
	SkipCatalog bool
	CatalogOnly bool
	Trace       bool
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.SkipCatalog && cfg.CatalogOnly {
		return nil, errors.New("skip-catalog and catalog-only cannot be combined")
	}
	if cfg.WorkerCount < 0 {
		return nil, errors.New("worker count cannot be negative")
	}
	return &cfg, nil
}
