package sysinfo

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/vmstats/internal/errors"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		HeapUsedBytes:       64 * bytesPerMB,
		NonHeapBytes:        16 * bytesPerMB,
		PhysicalUsedBytes:   Unavailable,
		ResidentBytes:       100 * bytesPerMB,
		Goroutines:          12,
		Threads:             7,
		GCCount:             3,
		GCPauseTotal:        5 * time.Millisecond,
		ProcessCPULoad:      12.5,
		SystemCPULoad:       Unavailable,
		OpenFileDescriptors: 9,
	}
}

func TestSamplerSnapshot(t *testing.T) {
	mock := clock.NewMock()
	s := NewSampler(mock)

	first := s.Snapshot()
	require.NotNil(t, first)
	assert.Equal(t, mock.Now(), first.TakenAt)
	assert.Positive(t, first.HeapUsedBytes)
	assert.Positive(t, first.Goroutines)
	assert.Positive(t, first.Threads)
	assert.Positive(t, first.NumCPU)

	// No previous reading yet
	assert.Equal(t, float64(Unavailable), first.ProcessCPULoad)

	mock.Add(time.Second)
	second := s.Snapshot()
	assert.True(t, second.TakenAt.After(first.TakenAt))
	assert.LessOrEqual(t, second.ProcessCPULoad, 100.0)
	assert.LessOrEqual(t, second.SystemCPULoad, 100.0)
}

func TestProcessLoad(t *testing.T) {
	// One second of CPU over two seconds on four cores
	assert.InDelta(t, 12.5, processLoad(10, 11, 2*time.Second, 4), 1e-9)
	assert.Equal(t, 100.0, processLoad(0, 10, time.Second, 1))
	assert.Equal(t, float64(Unavailable), processLoad(0, 1, 0, 4))
}

func TestSystemLoad(t *testing.T) {
	prev := procfs.CPUStat{User: 10, System: 10, Idle: 80}
	cur := procfs.CPUStat{User: 40, System: 10, Idle: 150}

	// 100 seconds elapsed, 70 idle
	assert.InDelta(t, 30.0, systemLoad(prev, cur), 1e-9)
	assert.Equal(t, float64(Unavailable), systemLoad(cur, cur))
}

func TestFactProvider(t *testing.T) {
	snap := testSnapshot()
	ctx := context.Background()

	v, err := Fact("heap", func(s *Snapshot) float64 { return megabytes(s.HeapUsedBytes) }).Value(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 64.0, v)

	_, err = Fact("physical", func(s *Snapshot) float64 { return megabytes(s.PhysicalUsedBytes) }).Value(ctx, snap)
	assert.ErrorIs(t, err, errors.ErrFactNotAvailable)
	assert.True(t, errors.IsProvider(err))
}

func TestGCTimeDelta(t *testing.T) {
	snap := testSnapshot()
	g := &GCTime{}
	ctx := context.Background()

	v, err := g.Value(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	v, _ = g.Value(ctx, snap)
	assert.Equal(t, 0.0, v)

	snap.GCPauseTotal += 1500 * time.Microsecond
	v, _ = g.Value(ctx, snap)
	assert.Equal(t, 1.5, v)
}

func TestDefaultStatistics(t *testing.T) {
	defs := DefaultStatistics()
	snap := testSnapshot()

	names := make(map[string]bool)
	values := make(map[string]float64)
	for _, d := range defs {
		require.False(t, names[d.Name], "duplicate %s", d.Name)
		names[d.Name] = true

		v, err := d.Provider.Value(context.Background(), snap)
		if err == nil {
			values[d.Name] = v
		}
	}

	assert.Len(t, defs, 10)
	assert.Equal(t, 64.0, values["heapUsed"])
	assert.Equal(t, 7.0, values["threads"])
	assert.Equal(t, 12.5, values["processLoad"])
	assert.Equal(t, 9.0, values["fileDescriptors"])
	assert.NotContains(t, values, "physicalUsed")
	assert.NotContains(t, values, "systemLoad")

	// Stateful providers are not shared between calls
	again := DefaultStatistics()
	for i := range defs {
		if defs[i].Name == "gcTime" {
			assert.NotSame(t, defs[i].Provider, again[i].Provider)
		}
	}
}

func TestStaticSource(t *testing.T) {
	snap := testSnapshot()
	var src Source = Static{Snap: snap}
	assert.Same(t, snap, src.Snapshot())
}
