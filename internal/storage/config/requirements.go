package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/vmstats/internal/constants"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

// Requirements represents calculated resource requirements for a set of
// metric tier layouts.
type Requirements struct {
	Metrics int
	Tiers   int

	// Memory requirements
	RingBytes       int64
	QueueBytes      int64
	QueryCacheBytes int64
	TotalRAMBytes   int64

	// Storage requirements
	LogBytes          int64
	SegmentSlackBytes int64
	TotalStorageBytes int64

	// Throughput
	SamplesPerDay int64
	BytesPerDay   int64
}

// Constants for calculations
const (
	// Bytes per sample held in a tier buffer
	bytesPerSample = 24

	// Bytes per record waiting in the persistence queue
	bytesPerQueuedRecord = 48

	// Bytes per raw record on disk (frame header + timestamp + value)
	bytesPerRawRecord = 26

	// Bytes per rollup record on disk (raw record + max)
	bytesPerRollupRecord = 35
)

// CalculateRequirements computes resource requirements for the given
// metric layouts, keyed by metric name.
func (c *Config) CalculateRequirements(layouts map[string][]types.TierSpec) Requirements {
	r := Requirements{Metrics: len(layouts)}

	day := int64(24 * time.Hour / time.Millisecond)

	for _, tiers := range layouts {
		for i, tier := range tiers {
			r.Tiers++

			// -----------------------------------------------------------------
			// Memory: one fixed ring per tier
			// -----------------------------------------------------------------
			r.RingBytes += int64(tier.Capacity) * bytesPerSample

			// -----------------------------------------------------------------
			// Storage: a tier's log holds its coverage
			// -----------------------------------------------------------------
			recordBytes := int64(bytesPerRollupRecord)
			if i == 0 {
				recordBytes = bytesPerRawRecord
			}
			r.LogBytes += int64(tier.Capacity) * recordBytes

			perDay := day / tier.PeriodMs()
			if perDay == 0 {
				perDay = 1
			}
			r.SamplesPerDay += perDay
			r.BytesPerDay += perDay * recordBytes
		}
	}

	if c.MemoryOnly() {
		r.LogBytes = 0
		r.BytesPerDay = 0
	}

	// Segments are pruned whole, one quarter of coverage at a time
	r.SegmentSlackBytes = r.LogBytes / 4
	r.TotalStorageBytes = r.LogBytes + r.SegmentSlackBytes

	if !c.MemoryOnly() && c.Persistence.Mode == constants.PersistenceModeAsync {
		r.QueueBytes = int64(c.Persistence.QueueSize) * bytesPerQueuedRecord
	}

	if c.Retention.Archive.Enabled {
		r.QueryCacheBytes, _ = parseMemoryLimit(c.Query.MemoryLimit)
	}

	r.TotalRAMBytes = r.RingBytes + r.QueueBytes + r.QueryCacheBytes

	return r
}

// FormatRequirements returns a human-readable summary of requirements.
func (r *Requirements) FormatRequirements() string {
	return fmt.Sprintf(`Resource Requirements
=====================

Layout:
  Metrics:           %d
  Tiers:             %d

Throughput:
  Samples/day:       %s
  Bytes/day:         %s

Memory:
  Tier Buffers:      %s
  Persist Queue:     %s
  Query Cache:       %s
  Total RAM:         %s

Storage:
  Logs:              %s
  Segment Slack:     %s
  Total Storage:     %s
`,
		r.Metrics,
		r.Tiers,
		formatNumber(r.SamplesPerDay),
		formatBytes(r.BytesPerDay),
		formatBytes(r.RingBytes),
		formatBytes(r.QueueBytes),
		formatBytes(r.QueryCacheBytes),
		formatBytes(r.TotalRAMBytes),
		formatBytes(r.LogBytes),
		formatBytes(r.SegmentSlackBytes),
		formatBytes(r.TotalStorageBytes),
	)
}

// parseMemoryLimit parses a memory limit string like "2GB" into bytes.
// An empty string means the DuckDB default.
func parseMemoryLimit(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	value, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, false
	}

	switch strings.ToUpper(strings.TrimSpace(s[i:])) {
	case "B", "":
		return value, true
	case "KB", "K":
		return value * 1024, true
	case "MB", "M":
		return value * 1024 * 1024, true
	case "GB", "G":
		return value * 1024 * 1024 * 1024, true
	case "TB", "T":
		return value * 1024 * 1024 * 1024 * 1024, true
	default:
		return 0, false
	}
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats a number with thousand separators.
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	if n < 1000000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1000000000)
}
