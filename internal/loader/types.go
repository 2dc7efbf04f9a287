// Package loader - Configuration Types
//
// Defines the YAML configuration structure for vmstatsd.
//
// ARCHITECTURE:
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                         vmstats.yaml                                │
//	├─────────────────────────────────────────────────────────────────────┤
//	│                                                                     │
//	│  collector:   Sampling interval, provider timeout, parallelism      │
//	│  tiers:       Default tier layout ("<period>:<capacity>")           │
//	│  statistics:  Per-statistic overrides (enabled, label, tiers)       │
//	│                                                                     │
//	│  ┌─────────────────────────────────────────────────────────────┐    │
//	│  │                        storage:                             │    │
//	│  │  dir (empty = memory only), wal, persistence, backpressure, │    │
//	│  │  retention (+ Parquet archive), query (DuckDB limits)       │    │
//	│  └─────────────────────────────────────────────────────────────┘    │
//	│                                                                     │
//	│  metrics:     Optional Prometheus endpoint                          │
//	│  logging:     Level and format                                      │
//	│  include:     Further files with statistics overrides               │
//	│                                                                     │
//	└─────────────────────────────────────────────────────────────────────┘
package loader

import (
	"time"

	"github.com/xtxerr/vmstats/config"
	"github.com/xtxerr/vmstats/internal/collector"
	storageconfig "github.com/xtxerr/vmstats/internal/storage/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for vmstatsd.
type Config struct {
	// Collector configures the sampling loop.
	Collector collector.Config `yaml:"collector"`

	// Tiers is the default tier layout, finest first. Empty selects the
	// standard layout for the collection interval.
	Tiers []string `yaml:"tiers"`

	// Statistics overrides individual statistics by name.
	Statistics map[string]*StatisticConfig `yaml:"statistics"`

	// Storage configures persistence. Without storage.dir the statistics
	// live in memory only.
	Storage storageconfig.Config `yaml:"storage"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Include lists further files (globs, relative to this file) whose
	// statistics sections are merged into this one.
	Include []string `yaml:"include"`
}

// StatisticConfig overrides one statistic.
type StatisticConfig struct {
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Label replaces the display label.
	Label string `yaml:"label"`

	// Tiers replaces the default tier layout.
	Tiers []string `yaml:"tiers"`
}

// IsEnabled reports whether the statistic is collected.
func (s *StatisticConfig) IsEnabled() bool {
	return s == nil || s.Enabled == nil || *s.Enabled
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the listen address, e.g. "127.0.0.1:9464". Empty disables
	// the endpoint.
	Listen string `yaml:"listen"`

	// Path is the HTTP path of the endpoint.
	Path string `yaml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Collector: *collector.DefaultConfig(),
		Storage:   *storageconfig.DefaultConfig(),
		Metrics: MetricsConfig{
			Path: config.DefaultMetricsPath,
		},
		Logging: LoggingConfig{
			Level:  config.DefaultLogLevel,
			Format: config.DefaultLogFormat,
		},
		ShutdownTimeout: config.DefaultShutdownTimeout,
	}
}
