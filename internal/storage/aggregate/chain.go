package aggregate

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/storage/buffer"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

// Chain is the downsampler chain of one metric: a raw tier followed by
// progressively coarser rollup tiers.
//
// Every rollup tier aggregates raw values directly over right-closed windows
// (end-period, end] aligned to the Unix epoch. A rollup is stamped with its
// window end, carries the mean of the raw values as Value and their maximum
// as Max, and is only produced for windows that saw at least one sample.
//
// Chain follows the single-writer rule of RingBuffer: Append, Load and
// Restore must be called from one goroutine. View is safe from any goroutine.
type Chain struct {
	specs []types.TierSpec
	rings []*buffer.RingBuffer

	// Per rollup tier (index 0 unused): accumulator of the open window and
	// the end of that window, valid once started is set.
	accs    []*StreamingAggregate
	ends    []int64
	started []bool

	rollups atomic.Int64
}

// NewChain creates a chain for the given tiers. Tier 0 holds raw samples.
func NewChain(specs []types.TierSpec) (*Chain, error) {
	if err := types.ValidateTiers(specs); err != nil {
		return nil, err
	}

	c := &Chain{
		specs:   append([]types.TierSpec(nil), specs...),
		rings:   make([]*buffer.RingBuffer, len(specs)),
		accs:    make([]*StreamingAggregate, len(specs)),
		ends:    make([]int64, len(specs)),
		started: make([]bool, len(specs)),
	}
	for i, spec := range specs {
		c.rings[i] = buffer.NewRing(spec.Capacity)
		if i > 0 {
			c.accs[i] = New(false)
		}
	}
	return c, nil
}

// Tiers returns a copy of the tier layout.
func (c *Chain) Tiers() []types.TierSpec {
	return append([]types.TierSpec(nil), c.specs...)
}

// NumTiers returns the number of tiers.
func (c *Chain) NumTiers() int {
	return len(c.specs)
}

// Tier returns the spec of tier i.
func (c *Chain) Tier(i int) types.TierSpec {
	return c.specs[i]
}

// View returns the current snapshot of tier i.
func (c *Chain) View(i int) *buffer.View {
	return c.rings[i].View()
}

// Append records one raw sample and performs every rollup it completes.
// It returns the samples written to the chain, raw first, so the caller can
// persist them. A sample that is not newer than the last raw sample is
// rejected and nil is returned.
func (c *Chain) Append(s types.Sample) []types.TierSample {
	if !c.rings[0].Append(s) {
		return nil
	}

	out := []types.TierSample{{Tier: 0, Sample: s}}
	for k := 1; k < len(c.specs); k++ {
		out = c.advance(k, s, out)
	}
	return out
}

// advance feeds a raw sample to rollup tier k.
func (c *Chain) advance(k int, s types.Sample, out []types.TierSample) []types.TierSample {
	spec := c.specs[k]

	if !c.started[k] {
		c.ends[k] = spec.WindowEnd(s.TimestampMs)
		c.started[k] = true
	}

	// The sample lies beyond the open window: that window is complete.
	// Windows skipped entirely saw no samples and produce nothing.
	if s.TimestampMs > c.ends[k] {
		out = c.close(k, out)
		c.ends[k] = spec.WindowEnd(s.TimestampMs)
	}

	c.accs[k].AddSample(s)

	if s.TimestampMs == c.ends[k] {
		out = c.close(k, out)
		c.ends[k] += spec.PeriodMs()
	}
	return out
}

func (c *Chain) close(k int, out []types.TierSample) []types.TierSample {
	acc := c.accs[k]
	if r, ok := acc.Rollup(c.ends[k]); ok && c.rings[k].Append(r) {
		out = append(out, types.TierSample{Tier: k, Sample: r})
		c.rollups.Add(1)
	}
	acc.Reset()
	return out
}

// Load appends persisted samples to tier i without rolling anything up.
// Returns the number of samples accepted.
func (c *Chain) Load(i int, samples []types.Sample) (int, error) {
	if i < 0 || i >= len(c.rings) {
		return 0, fmt.Errorf("tier %d of %d: %w", i, len(c.rings), errors.ErrTierNotFound)
	}
	return c.rings[i].Load(samples), nil
}

// Restore rebuilds the open window of every rollup tier after Load: raw
// samples newer than a tier's last rollup are replayed into its accumulator.
// Rollups completed by the replay (windows that closed while the process was
// down) are appended and returned for persisting.
func (c *Chain) Restore() []types.TierSample {
	raw := c.rings[0].View()

	var out []types.TierSample
	for k := 1; k < len(c.specs); k++ {
		c.accs[k].Reset()
		c.started[k] = false

		from := int64(math.MinInt64)
		if last, ok := c.rings[k].View().Newest(); ok {
			c.ends[k] = last.TimestampMs + c.specs[k].PeriodMs()
			c.started[k] = true
			from = last.TimestampMs + 1
		}
		for s := range raw.Range(from, math.MaxInt64) {
			out = c.advance(k, s, out)
		}
	}
	return out
}

// Stats returns chain statistics.
func (c *Chain) Stats() ChainStats {
	st := ChainStats{Rollups: c.rollups.Load()}
	for _, r := range c.rings {
		st.Tiers = append(st.Tiers, r.Stats())
	}
	return st
}

// ChainStats holds chain statistics.
type ChainStats struct {
	Rollups int64
	Tiers   []buffer.RingStats
}
