// Package collector drives periodic sampling of the registered statistics.
//
// One goroutine runs the ticks; it is the only writer of the metric tiers.
// Per tick the collector takes a system snapshot, invokes every provider
// concurrently with a timeout, appends the values to the raw tiers (which
// rolls up completed windows) and hands the new tier samples to the store.
//
// Provider failures cost the failing metric its sample for that tick and
// nothing else. Store failures are logged; collection continues in memory.
package collector

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/registry"
	"github.com/xtxerr/vmstats/internal/storage"
	"github.com/xtxerr/vmstats/internal/storage/types"
	"github.com/xtxerr/vmstats/internal/sysinfo"
)

var log = logging.Component("collector")

// Store receives the tier samples produced by each tick.
type Store interface {
	Submit(records []types.Record) error
	DiskUsage() int64
}

// TickResult describes one completed tick.
type TickResult struct {
	TimestampMs int64
	Duration    time.Duration
	Samples     int // raw samples appended
	Rollups     int
	Errors      map[string]error // provider errors by metric
	Persist     error
}

// Stats holds collector statistics.
type Stats struct {
	Ticks             int64
	SkippedTicks      int64
	Samples           int64
	Rollups           int64
	Rejected          int64 // samples not newer than the previous one
	ProviderErrors    int64
	PersistenceErrors int64
	LastCollect       time.Time
	LastDuration      time.Duration
}

// Collector samples the metrics of a registry.
type Collector struct {
	config   *Config
	registry *registry.Registry
	source   sysinfo.Source
	store    Store
	clock    clock.Clock
	metrics  *Metrics

	metricList []*registry.Metric
	errLogs    map[string]*rate.Sometimes
	persistLog *rate.Sometimes

	// tickMu serializes ticks from the loop and from Collect.
	tickMu sync.Mutex

	// Loop state
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	// Statistics
	ticks          atomic.Int64
	skipped        atomic.Int64
	samples        atomic.Int64
	rollups        atomic.Int64
	rejected       atomic.Int64
	providerErrors atomic.Int64
	persistErrors  atomic.Int64
	lastCollectMs  atomic.Int64
	lastDuration   atomic.Int64
}

// New creates a collector. The registry is sealed: metrics registered later
// would never be sampled. store and metrics may be nil.
func New(cfg *Config, reg *registry.Registry, source sysinfo.Source, store Store, clk clock.Clock, metrics *Metrics) (*Collector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid collector config: %w", err)
	}
	if reg == nil || source == nil {
		return nil, errors.NewMissingField("collector registry and source")
	}
	if store == nil {
		store = memoryOnly{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	reg.Seal()

	c := &Collector{
		config:     cfg,
		registry:   reg,
		source:     source,
		store:      store,
		clock:      clk,
		metrics:    metrics,
		metricList: reg.All(),
		errLogs:    make(map[string]*rate.Sometimes),
		persistLog: &rate.Sometimes{First: 1, Interval: cfg.ErrorLogInterval},
	}
	for _, m := range c.metricList {
		c.errLogs[m.Name] = &rate.Sometimes{First: 1, Interval: cfg.ErrorLogInterval}
	}
	c.lastCollectMs.Store(-1)
	return c, nil
}

// memoryOnly is the store of a collector without persistence.
type memoryOnly struct{}

func (memoryOnly) Submit([]types.Record) error { return nil }
func (memoryOnly) DiskUsage() int64            { return 0 }

// =============================================================================
// Lifecycle
// =============================================================================

// Start runs the first tick immediately and then one tick per interval
// until Stop or until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.ErrCollectorRunning
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.loop(ctx, c.stop, c.done)

	log.Info("collector started",
		"metrics", len(c.metricList),
		"interval", c.config.Interval,
		"provider_timeout", c.config.ProviderTimeout)
	return nil
}

// Stop lets the in-flight tick finish and prevents further ticks. It
// returns ctx.Err() if ctx ends first; the loop then exits on its own
// after the tick.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return errors.ErrCollectorStopped
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		log.Info("collector stopped", "ticks", c.ticks.Load(), "skipped", c.skipped.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the tick loop is active.
func (c *Collector) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Collector) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	// Ticks finish even when ctx is cancelled mid-tick.
	tickCtx := context.WithoutCancel(ctx)

	ticker := c.clock.Ticker(c.config.Interval)
	defer ticker.Stop()

	c.runTick(tickCtx, ticker.C)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Stop may have raced with the tick.
		select {
		case <-stop:
			return
		default:
		}

		c.runTick(tickCtx, ticker.C)
	}
}

// runTick collects once. Ticks that fell due while it ran are skipped, not
// queued.
func (c *Collector) runTick(ctx context.Context, ticks <-chan time.Time) {
	res := c.Collect(ctx)

	if missed := int64(res.Duration / c.config.Interval); missed > 0 {
		c.skipped.Add(missed)
		c.metrics.SkippedTicks.Add(float64(missed))
		log.Warn("tick overran interval, skipping",
			"duration", res.Duration,
			"interval", c.config.Interval,
			"skipped", missed)
	}

	select {
	case <-ticks:
	default:
	}
}

// =============================================================================
// Tick
// =============================================================================

type providerResult struct {
	value float64
	err   error
}

// Collect runs one tick now. The sample timestamp is the clock time at the
// start of the tick.
func (c *Collector) Collect(ctx context.Context) *TickResult {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	start := c.clock.Now()
	res := &TickResult{TimestampMs: start.UnixMilli()}

	snap := c.source.Snapshot()

	results := make([]providerResult, len(c.metricList))
	var g errgroup.Group
	if c.config.Parallelism > 0 {
		g.SetLimit(c.config.Parallelism)
	}
	for i, m := range c.metricList {
		g.Go(func() error {
			v, err := c.sample(ctx, m, snap)
			results[i] = providerResult{value: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	batch := types.NewRecordBatch(len(c.metricList))
	for i, m := range c.metricList {
		r := results[i]
		if r.err != nil {
			c.providerError(res, m, r.err)
			continue
		}

		out := m.Chain().Append(types.NewSample(res.TimestampMs, r.value))
		if len(out) == 0 {
			c.rejected.Add(1)
			log.Debug("sample not newer than previous", "metric", m.Name, "ts", res.TimestampMs)
			continue
		}
		res.Samples++
		res.Rollups += len(out) - 1
		batch.AddAll(m.Name, out)
		c.metrics.Values.WithLabelValues(m.Name, m.Unit).Set(r.value)
	}

	if err := c.store.Submit(batch.Records); err != nil {
		res.Persist = err
		c.persistErrors.Add(1)
		c.metrics.PersistenceErrors.Inc()
		c.persistLog.Do(func() {
			log.Warn("persisting samples failed, continuing in memory",
				"records", batch.Len(), "error", err)
		})
	}

	res.Duration = c.clock.Since(start)

	c.ticks.Add(1)
	c.samples.Add(int64(res.Samples))
	c.rollups.Add(int64(res.Rollups))
	c.lastCollectMs.Store(res.TimestampMs)
	c.lastDuration.Store(int64(res.Duration))
	c.metrics.Ticks.Inc()
	c.metrics.TickDuration.Observe(res.Duration.Seconds())

	log.Debug("tick done",
		"samples", res.Samples,
		"rollups", res.Rollups,
		"errors", len(res.Errors),
		"duration", res.Duration)

	return res
}

func (c *Collector) providerError(res *TickResult, m *registry.Metric, err error) {
	err = errors.NewProviderError(m.Name, err)
	if res.Errors == nil {
		res.Errors = make(map[string]error)
	}
	res.Errors[m.Name] = err

	c.providerErrors.Add(1)
	c.metrics.ProviderErrors.WithLabelValues(m.Name, errorReason(err)).Inc()
	c.errLogs[m.Name].Do(func() {
		log.Warn("provider failed", "metric", m.Name, "error", err)
	})
}

// sample invokes the provider of m with a timeout. A provider whose previous
// call has not returned is not invoked again.
func (c *Collector) sample(ctx context.Context, m *registry.Metric, snap *sysinfo.Snapshot) (float64, error) {
	if !m.TryAcquire() {
		return 0, errors.ErrProviderBusy
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.ProviderTimeout)
	defer cancel()

	ch := make(chan providerResult, 1)
	go func() {
		var res providerResult
		defer func() {
			if r := recover(); r != nil {
				res = providerResult{err: fmt.Errorf("%w: %v", errors.ErrProviderPanic, r)}
			}
			m.Release()
			ch <- res
		}()
		v, err := m.Provider.Value(ctx, snap)
		res = providerResult{value: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return 0, r.err
		}
		if math.IsNaN(r.value) || math.IsInf(r.value, 0) {
			return 0, fmt.Errorf("%v: %w", r.value, errors.ErrNonFinite)
		}
		return r.value, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("after %v: %w", c.config.ProviderTimeout, errors.ErrProviderTimeout)
	}
}

// =============================================================================
// Recovery
// =============================================================================

// Restore loads persisted tier samples into the registered metrics and
// rebuilds the open rollup windows. Rollups completed by the replay are
// handed to the store, which must already accept records. Must be called
// before Start.
func (c *Collector) Restore(logs []storage.LoadedLog) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	records := c.registry.Restore(logs)
	if err := c.store.Submit(records); err != nil {
		return err
	}

	if len(records) > 0 {
		log.Info("rollups completed during recovery", "records", len(records))
	}
	return nil
}

// =============================================================================
// Accessors
// =============================================================================

// LastCollectTimestamp returns the start of the last tick, zero before the
// first tick.
func (c *Collector) LastCollectTimestamp() time.Time {
	ms := c.lastCollectMs.Load()
	if ms < 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// LastCollectDuration returns the duration of the last tick.
func (c *Collector) LastCollectDuration() time.Duration {
	return time.Duration(c.lastDuration.Load())
}

// DiskUsage returns the bytes of the storage directory, 0 when memory-only.
func (c *Collector) DiskUsage() int64 {
	return c.store.DiskUsage()
}

// Registry returns the registry the collector samples.
func (c *Collector) Registry() *registry.Registry {
	return c.registry
}

// Stats returns collector statistics.
func (c *Collector) Stats() Stats {
	return Stats{
		Ticks:             c.ticks.Load(),
		SkippedTicks:      c.skipped.Load(),
		Samples:           c.samples.Load(),
		Rollups:           c.rollups.Load(),
		Rejected:          c.rejected.Load(),
		ProviderErrors:    c.providerErrors.Load(),
		PersistenceErrors: c.persistErrors.Load(),
		LastCollect:       c.LastCollectTimestamp(),
		LastDuration:      c.LastCollectDuration(),
	}
}
