package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/vmstats/config"
	"github.com/xtxerr/vmstats/internal/constants"
)

// Config represents the complete storage configuration.
type Config struct {
	// Dir is the root directory for all storage files.
	// Empty means the statistics are kept in memory only.
	Dir string `yaml:"dir"`

	// ReadOnly opens the directory without taking the writer lock.
	// Used by the operator shell against a live daemon's directory.
	ReadOnly bool `yaml:"-"`

	// WAL configures the per-tier sample logs.
	WAL WALConfig `yaml:"wal"`

	// Persistence configures how records travel from the collector to disk.
	Persistence PersistenceConfig `yaml:"persistence"`

	// Backpressure configures load shedding on the persistence queue.
	Backpressure BackpressureConfig `yaml:"backpressure"`

	// Retention configures pruning of segments past their tier's coverage.
	Retention RetentionConfig `yaml:"retention"`

	// Query configures the query engine and archive analytics.
	Query QueryConfig `yaml:"query"`
}

// WALConfig configures the per-tier sample logs.
type WALConfig struct {
	// SyncMode is the sync mode: async, fsync.
	SyncMode string `yaml:"sync_mode"`

	// MaxSegmentSize is the maximum segment size before rotation.
	MaxSegmentSize int64 `yaml:"max_segment_size"`
}

// PersistenceConfig configures the path from collector to store.
type PersistenceConfig struct {
	// Mode is "sync" (written on the collector goroutine) or "async"
	// (queued and written by a background worker).
	Mode string `yaml:"mode"`

	// QueueSize is the number of records the async queue holds.
	QueueSize int `yaml:"queue_size"`

	// FlushInterval is how often the async worker drains the queue.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// BatchSize is the maximum number of records written per drain step.
	BatchSize int `yaml:"batch_size"`

	// Durability decides what happens to records whose write failed:
	// "buffer" keeps them queued for retry until the queue is full,
	// "drop" discards them after logging.
	Durability string `yaml:"durability"`
}

// BackpressureConfig configures load shedding.
type BackpressureConfig struct {
	// Enabled enables backpressure handling.
	Enabled bool `yaml:"enabled"`

	// Thresholds defines queue usage thresholds for level changes.
	Thresholds BackpressureThresholds `yaml:"thresholds"`

	// Recovery configures recovery behavior.
	Recovery BackpressureRecovery `yaml:"recovery"`
}

// BackpressureThresholds defines queue usage thresholds.
type BackpressureThresholds struct {
	// Warning threshold (0.0-1.0).
	Warning float64 `yaml:"warning"`

	// Critical threshold (0.0-1.0).
	Critical float64 `yaml:"critical"`

	// Emergency threshold (0.0-1.0).
	Emergency float64 `yaml:"emergency"`
}

// BackpressureRecovery configures recovery behavior.
type BackpressureRecovery struct {
	// Hysteresis to prevent flapping (0.0-1.0).
	Hysteresis float64 `yaml:"hysteresis"`

	// Cooldown is the minimum time between level changes.
	Cooldown time.Duration `yaml:"cooldown"`
}

// RetentionConfig configures segment pruning.
type RetentionConfig struct {
	// Enabled runs the pruning worker.
	Enabled bool `yaml:"enabled"`

	// Interval is the time between pruning passes.
	Interval time.Duration `yaml:"interval"`

	// Archive configures copying pruned segments to Parquet.
	Archive ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig configures the Parquet archive of pruned segments.
type ArchiveConfig struct {
	// Enabled archives segments before they are deleted.
	Enabled bool `yaml:"enabled"`

	// Dir is the archive directory. Defaults to {Dir}/.archive.
	Dir string `yaml:"dir"`

	// Compression configures Parquet compression.
	Compression CompressionConfig `yaml:"compression"`
}

// CompressionConfig configures Parquet compression.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: snappy, zstd, lz4, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// QueryConfig configures the query engine.
type QueryConfig struct {
	// MaxPoints is the default point budget when a caller passes none.
	MaxPoints int `yaml:"max_points"`

	// Percentile configures DDSketch percentiles in summaries.
	Percentile PercentileConfig `yaml:"percentile"`

	// MemoryLimit is the DuckDB memory limit for archive analytics.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the archive query timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRows is the maximum number of rows an archive query returns.
	MaxRows int `yaml:"max_rows"`
}

// PercentileConfig configures DDSketch percentile calculation.
type PercentileConfig struct {
	// Enabled enables percentile calculation.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
// The directory is left empty, so the default is memory-only.
func DefaultConfig() *Config {
	return &Config{
		WAL: WALConfig{
			SyncMode:       constants.SyncModeAsync,
			MaxSegmentSize: 4 * 1024 * 1024, // 4MB
		},
		Persistence: PersistenceConfig{
			Mode:          constants.PersistenceModeAsync,
			QueueSize:     16384,
			FlushInterval: time.Second,
			BatchSize:     512,
			Durability:    constants.DurabilityBuffer,
		},
		Backpressure: BackpressureConfig{
			Enabled: true,
			Thresholds: BackpressureThresholds{
				Warning:   0.50,
				Critical:  0.80,
				Emergency: 0.95,
			},
			Recovery: BackpressureRecovery{
				Hysteresis: 0.10,
				Cooldown:   30 * time.Second,
			},
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Interval: time.Hour,
			Archive: ArchiveConfig{
				Compression: CompressionConfig{
					Algorithm: "zstd",
					Level:     3,
				},
			},
		},
		Query: QueryConfig{
			MaxPoints: defaults.DefaultMaxPoints,
			Percentile: PercentileConfig{
				Enabled:  true,
				Accuracy: 0.01,
			},
			MemoryLimit: "256MB",
			Timeout:     30 * time.Second,
			MaxRows:     100000,
		},
	}
}

// MemoryOnly reports whether no storage directory is configured.
func (c *Config) MemoryOnly() bool {
	return c.Dir == ""
}

// ArchiveDir returns the Parquet archive directory path.
func (c *Config) ArchiveDir() string {
	if c.Retention.Archive.Dir != "" {
		return c.Retention.Archive.Dir
	}
	return filepath.Join(c.Dir, ".archive")
}

// MetricDir returns the directory holding every tier log of a metric.
func (c *Config) MetricDir(metric string) string {
	return filepath.Join(c.Dir, metric)
}

// LogDir returns the segment directory for a metric tier.
func (c *Config) LogDir(metric string, tier int) string {
	return filepath.Join(c.Dir, metric, TierDirName(tier))
}

// LockPath returns the path of the directory lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Dir, ".lock")
}

// TierDirName returns the directory name of a tier index.
func TierDirName(tier int) string {
	return "t" + strconv.Itoa(tier)
}

// ParseTierDirName parses a tier directory name.
func ParseTierDirName(name string) (int, bool) {
	if len(name) < 2 || name[0] != 't' {
		return 0, false
	}
	tier, err := strconv.Atoi(name[1:])
	if err != nil || tier < 0 {
		return 0, false
	}
	return tier, true
}
