package sysinfo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xtxerr/vmstats/internal/constants"
	"github.com/xtxerr/vmstats/internal/errors"
)

const bytesPerMB = 1024 * 1024

// Provider supplies one metric value per tick from a shared snapshot.
// A failed call yields no sample for that tick.
type Provider interface {
	Value(ctx context.Context, snap *Snapshot) (float64, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, snap *Snapshot) (float64, error)

// Value calls f.
func (f ProviderFunc) Value(ctx context.Context, snap *Snapshot) (float64, error) {
	return f(ctx, snap)
}

// Fact returns a provider reading one snapshot fact. Unavailable facts are
// reported as errors.ErrFactNotAvailable.
func Fact(name string, get func(*Snapshot) float64) Provider {
	return ProviderFunc(func(_ context.Context, snap *Snapshot) (float64, error) {
		v := get(snap)
		if v < 0 {
			return 0, fmt.Errorf("%s: %w", name, errors.ErrFactNotAvailable)
		}
		return v, nil
	})
}

// Definition describes a statistic and its provider.
type Definition struct {
	Name        string
	Label       string
	Unit        string
	Description string
	Provider    Provider
}

// GCTime reports the garbage collector pause time since the previous call in
// milliseconds. The first call reports the pause time since process start.
type GCTime struct {
	mu   sync.Mutex
	last time.Duration
}

// Value implements Provider.
func (g *GCTime) Value(_ context.Context, snap *Snapshot) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delta := snap.GCPauseTotal - g.last
	g.last = snap.GCPauseTotal
	if delta < 0 {
		delta = 0
	}
	return float64(delta) / float64(time.Millisecond), nil
}

func megabytes(n int64) float64 {
	if n < 0 {
		return Unavailable
	}
	return float64(n) / bytesPerMB
}

// DefaultStatistics returns the built-in process statistics. Every call
// returns fresh providers, since some of them keep state between ticks.
func DefaultStatistics() []Definition {
	return []Definition{
		{
			Name: constants.StatHeapUsed, Label: "Used Heap Memory", Unit: constants.UnitMegabytes,
			Description: "Heap memory in use in megabytes",
			Provider:    Fact("heap", func(s *Snapshot) float64 { return megabytes(s.HeapUsedBytes) }),
		},
		{
			Name: constants.StatSysMemory, Label: "Used Non Heap Memory", Unit: constants.UnitMegabytes,
			Description: "Runtime memory outside the heap in megabytes",
			Provider:    Fact("non-heap", func(s *Snapshot) float64 { return megabytes(s.NonHeapBytes) }),
		},
		{
			Name: constants.StatPhysicalUsed, Label: "Used Physical Memory", Unit: constants.UnitMegabytes,
			Description: "Physical memory in use on the host in megabytes",
			Provider:    Fact("physical memory", func(s *Snapshot) float64 { return megabytes(s.PhysicalUsedBytes) }),
		},
		{
			Name: constants.StatGoroutines, Label: "Goroutines", Unit: constants.UnitCount,
			Description: "Number of goroutines",
			Provider:    Fact("goroutines", func(s *Snapshot) float64 { return float64(s.Goroutines) }),
		},
		{
			Name: constants.StatThreads, Label: "Live Threads", Unit: constants.UnitCount,
			Description: "Number of operating system threads",
			Provider:    Fact("threads", func(s *Snapshot) float64 { return float64(s.Threads) }),
		},
		{
			Name: constants.StatGCCount, Label: "Garbage Collections", Unit: constants.UnitCount,
			Description: "Number of completed garbage collection cycles",
			Provider:    Fact("gc count", func(s *Snapshot) float64 { return float64(s.GCCount) }),
		},
		{
			Name: constants.StatGCTime, Label: "Garbage Collector Time", Unit: constants.UnitMilliseconds,
			Description: "Garbage collector pause time per collection interval in milliseconds",
			Provider:    &GCTime{},
		},
		{
			Name: constants.StatProcessLoad, Label: "Process CPU Load", Unit: constants.UnitPercent,
			Description: "Recent process CPU load (all CPUs)",
			Provider:    Fact("process cpu", func(s *Snapshot) float64 { return s.ProcessCPULoad }),
		},
		{
			Name: constants.StatSystemLoad, Label: "System CPU Load", Unit: constants.UnitPercent,
			Description: "Recent system CPU load (all CPUs)",
			Provider:    Fact("system cpu", func(s *Snapshot) float64 { return s.SystemCPULoad }),
		},
		{
			Name: constants.StatFileDescriptors, Label: "Open File Descriptors", Unit: constants.UnitCount,
			Description: "Number of open file descriptors",
			Provider:    Fact("file descriptors", func(s *Snapshot) float64 { return float64(s.OpenFileDescriptors) }),
		},
	}
}
