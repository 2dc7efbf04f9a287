package testing

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/xtxerr/vmstats/internal/constants"
	"github.com/xtxerr/vmstats/internal/storage/aggregate"
	"github.com/xtxerr/vmstats/internal/storage/config"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

// BaseMs is a timestamp aligned to every period up to one day
// (2026-03-01T00:00:00Z).
const BaseMs = int64(1772323200000)

// Ramp returns n samples stepMs apart, the first at startMs+stepMs, with
// values 1..n.
func Ramp(startMs, stepMs int64, n int) []types.Sample {
	out := make([]types.Sample, n)
	for i := range out {
		out[i] = types.NewSample(startMs+int64(i+1)*stepMs, float64(i+1))
	}
	return out
}

// SecondTiers is a small layout for tests: 1s×100, 10s×100, 1m×100.
func SecondTiers() []types.TierSpec {
	return []types.TierSpec{
		{Period: time.Second, Capacity: 100},
		{Period: 10 * time.Second, Capacity: 100},
		{Period: time.Minute, Capacity: 100},
	}
}

// Chain builds a chain and appends samples as the collector would.
func Chain(t testing.TB, specs []types.TierSpec, samples []types.Sample) *aggregate.Chain {
	t.Helper()
	chain, err := aggregate.NewChain(specs)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	for _, s := range samples {
		chain.Append(s)
	}
	return chain
}

// MockClock returns a mock clock set to ms.
func MockClock(ms int64) *clock.Mock {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(ms))
	return mock
}

// StorageConfig returns a storage configuration rooted in a fresh temporary
// directory. Records are written synchronously and retention only runs when
// asked.
func StorageConfig(t testing.TB) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Persistence.Mode = constants.PersistenceModeSync
	cfg.Backpressure.Enabled = false
	cfg.Retention.Enabled = false
	return cfg
}
