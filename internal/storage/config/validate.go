package config

import (
	"errors"
	"fmt"
	"os"

	defaults "github.com/xtxerr/vmstats/config"
	"github.com/xtxerr/vmstats/internal/constants"
	vmerrors "github.com/xtxerr/vmstats/internal/errors"
)

// Validate checks the configuration for errors.
// The returned error matches errors.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error

	// WAL
	if err := c.WAL.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("wal: %w", err))
	}

	// Persistence
	if err := c.Persistence.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("persistence: %w", err))
	}

	// Backpressure
	if err := c.Backpressure.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("backpressure: %w", err))
	}

	// Retention
	if err := c.Retention.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retention: %w", err))
	}

	// Query
	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", vmerrors.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks the WAL configuration.
func (c *WALConfig) Validate() error {
	var errs []error

	if !constants.IsValidSyncMode(c.SyncMode) {
		errs = append(errs, errors.New("sync_mode must be one of: async, fsync"))
	}

	if c.MaxSegmentSize < 0 {
		errs = append(errs, errors.New("max_segment_size must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the persistence configuration.
func (c *PersistenceConfig) Validate() error {
	var errs []error

	if !constants.IsValidPersistenceMode(c.Mode) {
		errs = append(errs, errors.New("mode must be one of: sync, async"))
	}
	if !constants.IsValidDurability(c.Durability) {
		errs = append(errs, errors.New("durability must be one of: buffer, drop"))
	}

	if c.Mode == constants.PersistenceModeAsync {
		if c.QueueSize <= 0 {
			errs = append(errs, errors.New("queue_size must be positive for async mode"))
		}
		if c.FlushInterval <= 0 {
			errs = append(errs, errors.New("flush_interval must be positive for async mode"))
		}
		if c.BatchSize <= 0 {
			errs = append(errs, errors.New("batch_size must be positive for async mode"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the backpressure configuration.
func (c *BackpressureConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	// Thresholds must be in order
	if c.Thresholds.Warning <= 0 || c.Thresholds.Warning >= 1 {
		errs = append(errs, errors.New("thresholds.warning must be between 0 and 1"))
	}
	if c.Thresholds.Critical <= 0 || c.Thresholds.Critical >= 1 {
		errs = append(errs, errors.New("thresholds.critical must be between 0 and 1"))
	}
	if c.Thresholds.Emergency <= 0 || c.Thresholds.Emergency >= 1 {
		errs = append(errs, errors.New("thresholds.emergency must be between 0 and 1"))
	}

	if c.Thresholds.Warning >= c.Thresholds.Critical {
		errs = append(errs, errors.New("thresholds.warning must be < thresholds.critical"))
	}
	if c.Thresholds.Critical >= c.Thresholds.Emergency {
		errs = append(errs, errors.New("thresholds.critical must be < thresholds.emergency"))
	}

	// Recovery
	if c.Recovery.Hysteresis < 0 || c.Recovery.Hysteresis >= 0.5 {
		errs = append(errs, errors.New("recovery.hysteresis must be between 0 and 0.5"))
	}
	if c.Recovery.Cooldown < 0 {
		errs = append(errs, errors.New("recovery.cooldown must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the retention configuration.
func (c *RetentionConfig) Validate() error {
	var errs []error

	if c.Enabled && c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive when enabled"))
	}

	validAlgorithms := map[string]bool{
		"snappy": true,
		"zstd":   true,
		"lz4":    true,
		"gzip":   true,
		"none":   true,
		"":       true, // Empty defaults to zstd
	}
	comp := c.Archive.Compression
	if !validAlgorithms[comp.Algorithm] {
		errs = append(errs, errors.New("archive.compression.algorithm must be one of: snappy, zstd, lz4, gzip, none"))
	}
	if comp.Algorithm == "zstd" && (comp.Level < 0 || comp.Level > 22) {
		errs = append(errs, errors.New("archive.compression.level for zstd must be between 0 and 22"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.MaxPoints <= 0 || c.MaxPoints > defaults.MaxPointsLimit {
		errs = append(errs, fmt.Errorf("max_points must be between 1 and %d", defaults.MaxPointsLimit))
	}

	if c.Percentile.Enabled && (c.Percentile.Accuracy <= 0 || c.Percentile.Accuracy >= 1) {
		errs = append(errs, errors.New("percentile.accuracy must be between 0 and 1"))
	}

	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	if c.MaxRows <= 0 {
		errs = append(errs, errors.New("max_rows must be positive"))
	}

	if _, ok := parseMemoryLimit(c.MemoryLimit); !ok {
		errs = append(errs, fmt.Errorf("memory_limit %q is not a size", c.MemoryLimit))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureDirectories creates the storage directory.
// It is a no-op for memory-only configurations.
func (c *Config) EnsureDirectories() error {
	if c.MemoryOnly() {
		return nil
	}

	dirs := []string{c.Dir}
	if c.Retention.Archive.Enabled {
		dirs = append(dirs, c.ArchiveDir())
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
