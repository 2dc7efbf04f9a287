package collector

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/registry"
	"github.com/xtxerr/vmstats/internal/storage"
	"github.com/xtxerr/vmstats/internal/storage/config"
	"github.com/xtxerr/vmstats/internal/sysinfo"
	vmtest "github.com/xtxerr/vmstats/internal/testing"
)

// daemon is one process lifetime: registry, storage and collector.
type daemon struct {
	metric    *registry.Metric
	store     *storage.Service
	collector *Collector
}

func startDaemon(t *testing.T, cfg *config.Config, clk *clock.Mock) *daemon {
	t.Helper()

	// Reports the seconds elapsed since BaseMs.
	elapsed := sysinfo.ProviderFunc(func(context.Context, *sysinfo.Snapshot) (float64, error) {
		return float64((clk.Now().UnixMilli() - vmtest.BaseMs) / 1000), nil
	})

	reg := registry.New()
	m, err := reg.Register("heapUsed", elapsed, registry.Options{Tiers: testTiers()})
	require.NoError(t, err)

	svc, err := storage.New(cfg, reg, clk)
	require.NoError(t, err)
	svc.Declare(m.Name, m.Tiers())

	ccfg := DefaultConfig()
	ccfg.Interval = time.Second
	c, err := New(ccfg, reg, sysinfo.Static{Snap: &sysinfo.Snapshot{}}, svc, clk, nil)
	require.NoError(t, err)

	logs, err := svc.LoadAll(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	require.NoError(t, c.Restore(logs))

	return &daemon{metric: m, store: svc, collector: c}
}

func (d *daemon) tick(t *testing.T, clk *clock.Mock, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		clk.Add(time.Second)
		res := d.collector.Collect(context.Background())
		require.Empty(t, res.Errors)
		require.NoError(t, res.Persist)
	}
}

func TestHistorySurvivesRestart(t *testing.T) {
	cfg := vmtest.StorageConfig(t)
	clk := vmtest.MockClock(vmtest.BaseMs)

	first := startDaemon(t, cfg, clk)
	first.tick(t, clk, 90)
	before := collectAll(first.metric, 0)
	assert.Positive(t, first.store.DiskUsage())
	require.NoError(t, first.store.Stop(context.Background()))

	second := startDaemon(t, cfg, clk)
	t.Cleanup(func() { second.store.Stop(context.Background()) })

	assert.Equal(t, before, collectAll(second.metric, 0))
	assert.Equal(t, []float64{30.5}, values(collectAll(second.metric, 1)))

	// The window (60s, 120s] reopened with 61..90 and closes with 91..120.
	second.tick(t, clk, 30)
	assert.Equal(t, []float64{30.5, 90.5}, values(collectAll(second.metric, 1)))
}

func TestRebuiltRollupsArePersisted(t *testing.T) {
	cfg := vmtest.StorageConfig(t)
	clk := vmtest.MockClock(vmtest.BaseMs)

	first := startDaemon(t, cfg, clk)
	first.tick(t, clk, 90)
	require.NoError(t, first.store.Stop(context.Background()))

	// Lose the rollup log as if the process died before writing it.
	require.NoError(t, os.RemoveAll(cfg.LogDir("heapUsed", 1)))

	// Only 31..90 fit the raw tier, so the rebuilt window ending at 60s holds 31..60.
	second := startDaemon(t, cfg, clk)
	assert.Equal(t, []float64{45.5}, values(collectAll(second.metric, 1)))
	require.NoError(t, second.store.Stop(context.Background()))

	svc, err := storage.New(cfg, registry.New(), clk)
	require.NoError(t, err)
	logs, err := svc.LoadAll(context.Background())
	require.NoError(t, err)

	var rollups []float64
	for _, l := range logs {
		if l.Metric == "heapUsed" && l.Tier == 1 {
			rollups = values(l.Samples)
		}
	}
	assert.Equal(t, []float64{45.5}, rollups)
}

func TestSecondWriterIsLockedOut(t *testing.T) {
	cfg := vmtest.StorageConfig(t)
	clk := vmtest.MockClock(vmtest.BaseMs)

	d := startDaemon(t, cfg, clk)
	t.Cleanup(func() { d.store.Stop(context.Background()) })

	_, err := storage.New(cfg, registry.New(), clk)
	assert.ErrorIs(t, err, errors.ErrStoreLocked)
}
