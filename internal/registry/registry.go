// Package registry holds the metrics known to the statistics collector.
//
// Metrics are registered once at startup and the registry is then sealed.
// Each metric owns its downsampler chain; the collector goroutine is the only
// writer, readers go through the chain's views.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/storage"
	"github.com/xtxerr/vmstats/internal/storage/aggregate"
	"github.com/xtxerr/vmstats/internal/storage/types"
	"github.com/xtxerr/vmstats/internal/sysinfo"
	"github.com/xtxerr/vmstats/internal/validation"
)

var log = logging.Component("registry")

// Options describes a metric at registration.
type Options struct {
	Label       string
	Unit        string
	Description string

	// Tiers lists the retention tiers, finest first. Tier 0 holds raw samples.
	Tiers []types.TierSpec
}

// Metric is a registered statistic.
type Metric struct {
	Name        string
	Label       string
	Unit        string
	Description string
	Provider    sysinfo.Provider

	chain *aggregate.Chain
	busy  atomic.Bool
}

// Chain returns the downsampler chain of the metric.
func (m *Metric) Chain() *aggregate.Chain {
	return m.chain
}

// Tiers returns the tier layout of the metric.
func (m *Metric) Tiers() []types.TierSpec {
	return m.chain.Tiers()
}

// TryAcquire marks the provider as running. It returns false when the
// previous call has not returned yet.
func (m *Metric) TryAcquire() bool {
	return m.busy.CompareAndSwap(false, true)
}

// Release marks the provider as idle.
func (m *Metric) Release() {
	m.busy.Store(false)
}

// Registry is the set of registered metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	order   []*Metric
	sealed  bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{metrics: make(map[string]*Metric)}
}

// Register adds a metric. All failures are configuration errors.
func (r *Registry) Register(name string, provider sysinfo.Provider, opts Options) (*Metric, error) {
	if err := validation.ValidateMetricName(name); err != nil {
		return nil, fmt.Errorf("metric '%s': %w: %v", name, errors.ErrInvalidName, err)
	}
	if provider == nil {
		return nil, fmt.Errorf("metric '%s': provider: %w", name, errors.ErrMissingField)
	}
	if len(opts.Tiers) == 0 {
		return nil, fmt.Errorf("metric '%s': %w", name, errors.ErrNoTiers)
	}

	chain, err := aggregate.NewChain(opts.Tiers)
	if err != nil {
		return nil, fmt.Errorf("metric '%s': %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil, fmt.Errorf("metric '%s': %w", name, errors.ErrRegistrySealed)
	}
	if _, exists := r.metrics[name]; exists {
		return nil, fmt.Errorf("metric '%s': %w", name, errors.ErrMetricAlreadyExists)
	}

	label := opts.Label
	if label == "" {
		label = name
	}

	m := &Metric{
		Name:        name,
		Label:       label,
		Unit:        opts.Unit,
		Description: opts.Description,
		Provider:    provider,
		chain:       chain,
	}
	r.metrics[name] = m
	r.order = append(r.order, m)
	return m, nil
}

// RegisterDefinitions registers every definition with the same tier layout.
func (r *Registry) RegisterDefinitions(defs []sysinfo.Definition, tiers []types.TierSpec) error {
	var errs []error
	for _, d := range defs {
		_, err := r.Register(d.Name, d.Provider, Options{
			Label:       d.Label,
			Unit:        d.Unit,
			Description: d.Description,
			Tiers:       tiers,
		})
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Lookup returns the metric with the given name.
func (r *Registry) Lookup(name string) (*Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.metrics[name]
	if !ok {
		return nil, errors.NewMetricNotFound(name)
	}
	return m, nil
}

// Chain returns the downsampler chain of the named metric.
func (r *Registry) Chain(name string) (*aggregate.Chain, error) {
	m, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return m.chain, nil
}

// All returns the metrics in registration order.
func (r *Registry) All() []*Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Metric(nil), r.order...)
}

// Names returns the metric names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	for i, m := range r.order {
		names[i] = m.Name
	}
	return names
}

// Len returns the number of registered metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Seal rejects further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// TierInfo returns the coverage of a metric tier and the timestamp of its
// oldest in-memory sample, -1 when the tier is empty.
func (r *Registry) TierInfo(metric string, tier int) (time.Duration, int64, bool) {
	m, err := r.Lookup(metric)
	if err != nil || tier < 0 || tier >= m.chain.NumTiers() {
		return 0, -1, false
	}

	coverage := m.chain.Tier(tier).Coverage()
	oldest, ok := m.chain.View(tier).Oldest()
	if !ok {
		return coverage, -1, true
	}
	return coverage, oldest.TimestampMs, true
}

// Restore loads persisted tier logs into the registered metrics and rebuilds
// their open rollup windows. Logs of unknown metrics or tiers are skipped.
// Returns the rollups completed by the replay; the caller decides whether
// they are persisted.
func (r *Registry) Restore(logs []storage.LoadedLog) []types.Record {
	for _, l := range logs {
		for _, err := range l.Corrupt {
			log.Warn("recovered log was damaged, remainder of segment dropped",
				"metric", l.Metric, "tier", l.Tier, "error", err)
		}

		m, err := r.Lookup(l.Metric)
		if err != nil {
			log.Warn("skipping log of unknown metric", "metric", l.Metric, "tier", l.Tier)
			continue
		}
		n, err := m.chain.Load(l.Tier, l.Samples)
		if err != nil {
			log.Warn("skipping log of unknown tier", "metric", l.Metric, "tier", l.Tier)
			continue
		}
		if n < len(l.Samples) {
			log.Debug("dropped out of order samples", "metric", l.Metric, "tier", l.Tier,
				"dropped", len(l.Samples)-n)
		}
	}

	batch := types.NewRecordBatch(0)
	for _, m := range r.All() {
		batch.AddAll(m.Name, m.chain.Restore())
	}
	return batch.Records
}
