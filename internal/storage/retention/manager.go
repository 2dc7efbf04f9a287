package retention

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/xtxerr/vmstats/internal/storage/config"
	"github.com/xtxerr/vmstats/internal/storage/wal"
)

// Store is the segment storage the manager prunes.
type Store interface {
	Logs() ([]wal.LogInfo, error)
	DeleteSegment(metric string, tier int, path string) error
}

// Tiers describes the in-memory side of each log.
type Tiers interface {
	// TierInfo returns the coverage of a metric tier and the timestamp of its
	// oldest in-memory sample, or -1 when the tier is empty. ok is false for
	// unknown metrics and tiers.
	TierInfo(metric string, tier int) (coverage time.Duration, oldestMs int64, ok bool)
}

// Archiver copies a segment elsewhere before it is deleted.
type Archiver interface {
	Archive(metric string, tier int, seg wal.SegmentInfo) error
}

// Manager deletes segments whose records have all left their tier.
//
// A closed segment is expired when every record in it is older than both
// now - coverage and the oldest sample still held in memory. Segments never
// overlap in time, so the first timestamp of the following segment bounds
// every record of the one before it. The active segment and the last
// segment of a log are never deleted.
type Manager struct {
	mu       sync.RWMutex
	config   *config.Config
	store    Store
	tiers    Tiers
	archiver Archiver
	clock    clock.Clock
	stats    Stats
}

// Stats holds retention statistics.
type Stats struct {
	LastRunTime      time.Time
	SegmentsDeleted  int64
	SegmentsArchived int64
	BytesFreed       int64
	SegmentsSkipped  int64
	Errors           int64
}

// CleanupResult holds the result of a cleanup operation on one log.
type CleanupResult struct {
	Metric          string
	Tier            int
	Cutoff          time.Time
	SegmentsDeleted int
	SegmentsKept    int
	BytesFreed      int64
	Unknown         bool
	Errors          []error
}

// New creates a new retention manager.
func New(cfg *config.Config, store Store, tiers Tiers, clk clock.Clock) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Manager{
		config: cfg,
		store:  store,
		tiers:  tiers,
		clock:  clk,
	}
}

// SetArchiver installs an archiver that runs before each deletion.
// A segment whose archiving fails is kept.
func (m *Manager) SetArchiver(a Archiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiver = a
}

// RunCleanup performs cleanup on all logs.
func (m *Manager) RunCleanup() ([]CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.LastRunTime = m.clock.Now()

	logs, err := m.store.Logs()
	if err != nil {
		m.stats.Errors++
		return nil, err
	}

	results := make([]CleanupResult, 0, len(logs))
	for _, l := range logs {
		result := m.cleanupLog(l, false)
		results = append(results, result)
		m.record(result)
	}

	return results, nil
}

// DryRun simulates cleanup without deleting files.
func (m *Manager) DryRun() ([]CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logs, err := m.store.Logs()
	if err != nil {
		return nil, err
	}

	results := make([]CleanupResult, 0, len(logs))
	for _, l := range logs {
		results = append(results, m.cleanupLog(l, true))
	}

	return results, nil
}

func (m *Manager) record(result CleanupResult) {
	m.stats.SegmentsDeleted += int64(result.SegmentsDeleted)
	m.stats.BytesFreed += result.BytesFreed
	m.stats.SegmentsSkipped += int64(result.SegmentsKept)
	m.stats.Errors += int64(len(result.Errors))
}

// cleanupLog performs cleanup for a single log.
func (m *Manager) cleanupLog(l wal.LogInfo, dryRun bool) CleanupResult {
	result := CleanupResult{Metric: l.Metric, Tier: l.Tier}

	coverage, oldestMs, ok := m.tiers.TierInfo(l.Metric, l.Tier)
	if !ok {
		// Logs of metrics that are no longer registered are left alone.
		result.Unknown = true
		result.SegmentsKept = len(l.Segments)
		return result
	}

	cutoff := m.clock.Now().Add(-coverage).UnixMilli()
	if oldestMs >= 0 && oldestMs < cutoff {
		cutoff = oldestMs
	}
	result.Cutoff = time.UnixMilli(cutoff)

	for i, seg := range l.Segments {
		if seg.Active || i+1 >= len(l.Segments) || l.Segments[i+1].FirstTs > cutoff {
			result.SegmentsKept = len(l.Segments) - i
			break
		}

		if !dryRun {
			if m.archiver != nil {
				if err := m.archiver.Archive(l.Metric, l.Tier, seg); err != nil {
					result.Errors = append(result.Errors, fmt.Errorf("archive %s: %w", seg.Path, err))
					result.SegmentsKept = len(l.Segments) - i
					break
				}
				m.stats.SegmentsArchived++
			}
			if err := m.store.DeleteSegment(l.Metric, l.Tier, seg.Path); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", seg.Path, err))
				result.SegmentsKept = len(l.Segments) - i
				break
			}
		}

		result.SegmentsDeleted++
		result.BytesFreed += seg.Size
	}

	return result
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ManagerStats{
		LastRunTime:      m.stats.LastRunTime,
		SegmentsDeleted:  m.stats.SegmentsDeleted,
		SegmentsArchived: m.stats.SegmentsArchived,
		BytesFreed:       m.stats.BytesFreed,
		SegmentsSkipped:  m.stats.SegmentsSkipped,
		Errors:           m.stats.Errors,
	}
}

// ManagerStats holds manager statistics.
type ManagerStats struct {
	LastRunTime      time.Time
	SegmentsDeleted  int64
	SegmentsArchived int64
	BytesFreed       int64
	SegmentsSkipped  int64
	Errors           int64
}

// DiskUsage holds disk usage information for one log.
type DiskUsage struct {
	Metric    string
	Tier      int
	FileCount int
	TotalSize int64
}

// GetDiskUsage returns disk usage for each log.
func (m *Manager) GetDiskUsage() ([]DiskUsage, error) {
	logs, err := m.store.Logs()
	if err != nil {
		return nil, err
	}

	usage := make([]DiskUsage, 0, len(logs))
	for _, l := range logs {
		usage = append(usage, DiskUsage{
			Metric:    l.Metric,
			Tier:      l.Tier,
			FileCount: len(l.Segments),
			TotalSize: l.Bytes(),
		})
	}

	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Metric != usage[j].Metric {
			return usage[i].Metric < usage[j].Metric
		}
		return usage[i].Tier < usage[j].Tier
	})

	return usage, nil
}

// FormatDiskUsage returns a formatted string of disk usage.
func FormatDiskUsage(usage []DiskUsage) string {
	var b strings.Builder
	var totalSize int64
	var totalFiles int

	b.WriteString("Disk Usage:\n")
	for _, u := range usage {
		totalSize += u.TotalSize
		totalFiles += u.FileCount

		fmt.Fprintf(&b, "  %s/t%d: %d files, %s\n",
			u.Metric,
			u.Tier,
			u.FileCount,
			formatBytes(u.TotalSize),
		)
	}
	fmt.Fprintf(&b, "  Total: %d files, %s\n", totalFiles, formatBytes(totalSize))

	return b.String()
}

// formatBytes formats bytes as human-readable string.
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
