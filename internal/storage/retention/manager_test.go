package retention

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/xtxerr/vmstats/internal/storage/config"
	"github.com/xtxerr/vmstats/internal/storage/wal"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	logs    []wal.LogInfo
	deleted []string
	failOn  string
}

func (f *fakeStore) Logs() ([]wal.LogInfo, error) {
	return f.logs, nil
}

func (f *fakeStore) DeleteSegment(metric string, tier int, path string) error {
	if path == f.failOn {
		return fmt.Errorf("permission denied")
	}
	f.deleted = append(f.deleted, path)
	return nil
}

type fakeTiers map[string]struct {
	coverage time.Duration
	oldestMs int64
}

func (f fakeTiers) TierInfo(metric string, tier int) (time.Duration, int64, bool) {
	t, ok := f[fmt.Sprintf("%s/%d", metric, tier)]
	return t.coverage, t.oldestMs, ok
}

type fakeArchiver struct {
	archived []string
	fail     bool
}

func (f *fakeArchiver) Archive(metric string, tier int, seg wal.SegmentInfo) error {
	if f.fail {
		return fmt.Errorf("archive unavailable")
	}
	f.archived = append(f.archived, seg.Path)
	return nil
}

// hourlySegments returns n segments starting at base, one per hour.
func hourlySegments(n int) []wal.SegmentInfo {
	segs := make([]wal.SegmentInfo, n)
	for i := range segs {
		segs[i] = wal.SegmentInfo{
			Path:    fmt.Sprintf("seg%d", i),
			Seq:     int64(i),
			FirstTs: base.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Size:    100,
		}
	}
	segs[n-1].Active = true
	return segs
}

func newManager(store Store, tiers Tiers, now time.Time) *Manager {
	mock := clock.NewMock()
	mock.Set(now)
	return New(config.DefaultConfig(), store, tiers, mock)
}

func TestManager_PrunesExpiredSegments(t *testing.T) {
	store := &fakeStore{logs: []wal.LogInfo{{Metric: "heapUsed", Tier: 0, Segments: hourlySegments(6)}}}
	tiers := fakeTiers{"heapUsed/0": {coverage: 2 * time.Hour, oldestMs: -1}}

	// now - coverage = base+3h: seg0..seg2 end before it
	m := newManager(store, tiers, base.Add(5*time.Hour))

	results, err := m.RunCleanup()
	if err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.SegmentsDeleted != 3 {
		t.Errorf("expected 3 deleted, got %d", r.SegmentsDeleted)
	}
	if r.SegmentsKept != 3 {
		t.Errorf("expected 3 kept, got %d", r.SegmentsKept)
	}
	if r.BytesFreed != 300 {
		t.Errorf("expected 300 bytes freed, got %d", r.BytesFreed)
	}
	if strings.Join(store.deleted, ",") != "seg0,seg1,seg2" {
		t.Errorf("deleted %v", store.deleted)
	}

	stats := m.Stats()
	if stats.SegmentsDeleted != 3 || stats.BytesFreed != 300 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.LastRunTime.Equal(base.Add(5 * time.Hour)) {
		t.Errorf("LastRunTime = %v", stats.LastRunTime)
	}
}

func TestManager_OldestInMemoryProtects(t *testing.T) {
	store := &fakeStore{logs: []wal.LogInfo{{Metric: "heapUsed", Tier: 0, Segments: hourlySegments(6)}}}
	// Memory still holds data from base+1h30m
	tiers := fakeTiers{"heapUsed/0": {
		coverage: 2 * time.Hour,
		oldestMs: base.Add(90 * time.Minute).UnixMilli(),
	}}

	m := newManager(store, tiers, base.Add(5*time.Hour))
	results, _ := m.RunCleanup()

	// Only seg0 ends before base+1h30m
	if results[0].SegmentsDeleted != 1 {
		t.Errorf("expected 1 deleted, got %d", results[0].SegmentsDeleted)
	}
}

func TestManager_NeverDeletesActiveOrLast(t *testing.T) {
	segs := hourlySegments(2)
	store := &fakeStore{logs: []wal.LogInfo{{Metric: "threads", Tier: 1, Segments: segs}}}
	tiers := fakeTiers{"threads/1": {coverage: time.Minute, oldestMs: -1}}

	m := newManager(store, tiers, base.Add(100*24*time.Hour))
	results, _ := m.RunCleanup()

	if results[0].SegmentsDeleted != 1 {
		t.Errorf("expected only the closed segment deleted, got %d", results[0].SegmentsDeleted)
	}
	for _, p := range store.deleted {
		if p == segs[1].Path {
			t.Error("active segment deleted")
		}
	}

	// A log with a single closed segment keeps it
	store.logs = []wal.LogInfo{{Metric: "threads", Tier: 1, Segments: []wal.SegmentInfo{{Path: "only", FirstTs: 0}}}}
	results, _ = m.RunCleanup()
	if results[0].SegmentsDeleted != 0 {
		t.Error("last segment of a log deleted")
	}
}

func TestManager_UnknownLogsKept(t *testing.T) {
	store := &fakeStore{logs: []wal.LogInfo{{Metric: "retired", Tier: 0, Segments: hourlySegments(4)}}}

	m := newManager(store, fakeTiers{}, base.Add(1000*time.Hour))
	results, _ := m.RunCleanup()

	if !results[0].Unknown {
		t.Error("expected Unknown")
	}
	if len(store.deleted) != 0 {
		t.Errorf("deleted %v from unknown log", store.deleted)
	}
}

func TestManager_DryRun(t *testing.T) {
	store := &fakeStore{logs: []wal.LogInfo{{Metric: "heapUsed", Tier: 0, Segments: hourlySegments(6)}}}
	tiers := fakeTiers{"heapUsed/0": {coverage: 2 * time.Hour, oldestMs: -1}}

	m := newManager(store, tiers, base.Add(5*time.Hour))
	results, _ := m.DryRun()

	if results[0].SegmentsDeleted != 3 {
		t.Errorf("expected 3 would-be deletions, got %d", results[0].SegmentsDeleted)
	}
	if len(store.deleted) != 0 {
		t.Error("dry run deleted files")
	}
	if m.Stats().SegmentsDeleted != 0 {
		t.Error("dry run updated stats")
	}
}

func TestManager_ArchiveBeforeDelete(t *testing.T) {
	store := &fakeStore{logs: []wal.LogInfo{{Metric: "heapUsed", Tier: 0, Segments: hourlySegments(6)}}}
	tiers := fakeTiers{"heapUsed/0": {coverage: 2 * time.Hour, oldestMs: -1}}

	m := newManager(store, tiers, base.Add(5*time.Hour))
	arch := &fakeArchiver{}
	m.SetArchiver(arch)

	m.RunCleanup()

	if len(arch.archived) != 3 {
		t.Errorf("expected 3 archived, got %d", len(arch.archived))
	}
	if m.Stats().SegmentsArchived != 3 {
		t.Errorf("SegmentsArchived = %d", m.Stats().SegmentsArchived)
	}
}

func TestManager_ArchiveFailureKeepsSegment(t *testing.T) {
	store := &fakeStore{logs: []wal.LogInfo{{Metric: "heapUsed", Tier: 0, Segments: hourlySegments(6)}}}
	tiers := fakeTiers{"heapUsed/0": {coverage: 2 * time.Hour, oldestMs: -1}}

	m := newManager(store, tiers, base.Add(5*time.Hour))
	m.SetArchiver(&fakeArchiver{fail: true})

	results, _ := m.RunCleanup()

	if len(store.deleted) != 0 {
		t.Errorf("deleted %v after archive failure", store.deleted)
	}
	if len(results[0].Errors) != 1 {
		t.Errorf("expected 1 error, got %v", results[0].Errors)
	}
	if m.Stats().Errors != 1 {
		t.Errorf("Errors = %d", m.Stats().Errors)
	}
}

func TestManager_DeleteFailureStops(t *testing.T) {
	store := &fakeStore{
		logs:   []wal.LogInfo{{Metric: "heapUsed", Tier: 0, Segments: hourlySegments(6)}},
		failOn: "seg1",
	}
	tiers := fakeTiers{"heapUsed/0": {coverage: 2 * time.Hour, oldestMs: -1}}

	m := newManager(store, tiers, base.Add(5*time.Hour))
	results, _ := m.RunCleanup()

	if results[0].SegmentsDeleted != 1 {
		t.Errorf("expected 1 deleted before the failure, got %d", results[0].SegmentsDeleted)
	}
	if len(results[0].Errors) != 1 {
		t.Errorf("expected 1 error, got %d", len(results[0].Errors))
	}
}

func TestManager_DiskUsage(t *testing.T) {
	store := &fakeStore{logs: []wal.LogInfo{
		{Metric: "threads", Tier: 0, Segments: hourlySegments(2)},
		{Metric: "heapUsed", Tier: 1, Segments: hourlySegments(3)},
	}}

	m := newManager(store, fakeTiers{}, base)
	usage, err := m.GetDiskUsage()
	if err != nil {
		t.Fatalf("GetDiskUsage: %v", err)
	}

	if len(usage) != 2 || usage[0].Metric != "heapUsed" {
		t.Fatalf("usage = %+v", usage)
	}
	if usage[0].FileCount != 3 || usage[0].TotalSize != 300 {
		t.Errorf("heapUsed usage = %+v", usage[0])
	}

	out := FormatDiskUsage(usage)
	if !strings.Contains(out, "heapUsed/t1: 3 files, 300 B") {
		t.Errorf("unexpected format:\n%s", out)
	}
	if !strings.Contains(out, "Total: 5 files, 500 B") {
		t.Errorf("unexpected total:\n%s", out)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.input); got != tt.expected {
			t.Errorf("formatBytes(%d) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}
