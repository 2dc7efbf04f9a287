// Package config provides configuration defaults for the vmstats daemon
// and the statsctl shell.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via vmstats.yaml or environment variables
// referenced from it.
package config

import "time"

// =============================================================================
// Collector Defaults
// =============================================================================

const (
	// DefaultCollectInterval is the sampling period of the collector.
	// Override via config: collector.interval
	DefaultCollectInterval = time.Minute

	// DefaultProviderTimeout bounds a single provider call. A provider that
	// does not return in time yields no sample for that tick.
	// Override via config: collector.provider_timeout
	DefaultProviderTimeout = 5 * time.Second

	// DefaultProviderParallelism limits concurrently running providers.
	// Zero means one per metric.
	// Override via config: collector.parallelism
	DefaultProviderParallelism = 8

	// DefaultErrorLogInterval throttles repeated provider error logs per metric.
	// Override via config: collector.error_log_interval
	DefaultErrorLogInterval = time.Minute
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultMaxPoints is the point budget of chart queries, roughly the
	// pixel width of a chart.
	// Override via config: storage.query.max_points
	DefaultMaxPoints = 500

	// MaxPointsLimit is the largest accepted point budget.
	MaxPointsLimit = 100000
)

// =============================================================================
// Metrics Endpoint Defaults
// =============================================================================

const (
	// DefaultMetricsPath is the HTTP path of the Prometheus endpoint.
	// The endpoint is disabled unless metrics.listen is set.
	// Override via config: metrics.path
	DefaultMetricsPath = "/metrics"

	// DefaultMetricsReadTimeout bounds reading a scrape request.
	DefaultMetricsReadTimeout = 10 * time.Second
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultShutdownTimeout is how long shutdown waits for the in-flight
	// tick and for queued records to reach the disk.
	// After this timeout, remaining records are abandoned.
	// Override via config: shutdown_timeout
	DefaultShutdownTimeout = 30 * time.Second
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the log level of the daemon.
	// Override via config: logging.level or the -log-level flag
	DefaultLogLevel = "info"

	// DefaultLogFormat is "text" or "json".
	// Override via config: logging.format
	DefaultLogFormat = "text"
)

// =============================================================================
// Shell Defaults
// =============================================================================

const (
	// DefaultHistoryFile is the statsctl history file, relative to $HOME.
	DefaultHistoryFile = ".statsctl_history"

	// DefaultShellMaxRows limits rows printed by statsctl per command.
	DefaultShellMaxRows = 50
)
