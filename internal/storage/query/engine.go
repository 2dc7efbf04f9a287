// Package query answers range queries over the in-memory statistics tiers.
//
// A query picks the finest tier that reaches back to the start of the range
// and steps to coarser tiers while the answer would exceed the point budget.
// Reads go through immutable tier views and never block the collector.
package query

import (
	"fmt"
	"math"
	"slices"
	"sync/atomic"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/storage/aggregate"
	"github.com/xtxerr/vmstats/internal/storage/buffer"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

var log = logging.Component("query")

// Catalog resolves metric names to their tiers.
type Catalog interface {
	Chain(name string) (*aggregate.Chain, error)
}

// Result is the answer to a range query.
type Result struct {
	Metric  string
	Samples []types.Sample

	// Tier is the index of the tier the samples come from.
	Tier int

	// Truncated is set when no tier reaches back to the start of the range;
	// Samples then hold the partial history that exists.
	Truncated bool

	// Decimated is set when even the coarsest candidate held more than
	// maxPoints samples and evenly spaced samples were picked.
	Decimated bool
}

// Engine runs queries against a catalog.
type Engine struct {
	catalog Catalog

	// Statistics
	queries     atomic.Int64
	samplesOut  atomic.Int64
	truncations atomic.Int64
	decimations atomic.Int64
	queryErrors atomic.Int64
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	SamplesReturned int64
	Truncated       int64
	Decimated       int64
	Errors          int64
}

// New creates a query engine.
func New(catalog Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Query returns at most maxPoints samples of a metric with timestamps in
// [fromMs, toMs], oldest first. Identical inputs against unchanged tiers
// give identical results.
func (e *Engine) Query(name string, fromMs, toMs int64, maxPoints int) (*Result, error) {
	return e.record(e.query(name, -1, fromMs, toMs, maxPoints))
}

// QueryTier is Query answered from one given tier.
func (e *Engine) QueryTier(name string, tier int, fromMs, toMs int64, maxPoints int) (*Result, error) {
	if tier < 0 {
		return e.record(nil, errors.NewInvalidValue("tier", tier, "must not be negative"))
	}
	return e.record(e.query(name, tier, fromMs, toMs, maxPoints))
}

func (e *Engine) record(res *Result, err error) (*Result, error) {
	if err != nil {
		e.queryErrors.Add(1)
		return nil, err
	}

	e.queries.Add(1)
	e.samplesOut.Add(int64(len(res.Samples)))
	if res.Truncated {
		e.truncations.Add(1)
	}
	if res.Decimated {
		e.decimations.Add(1)
	}
	return res, nil
}

// query answers from tier, or from the selected tier when tier is negative.
func (e *Engine) query(name string, tier int, fromMs, toMs int64, maxPoints int) (*Result, error) {
	if fromMs > toMs {
		return nil, fmt.Errorf("from %d after to %d: %w", fromMs, toMs, errors.ErrInvalidRange)
	}
	if maxPoints <= 0 {
		return nil, errors.NewInvalidValue("maxPoints", maxPoints, "must be positive")
	}

	chain, err := e.catalog.Chain(name)
	if err != nil {
		return nil, err
	}

	views := make([]*buffer.View, chain.NumTiers())
	for i := range views {
		views[i] = chain.View(i)
	}

	var truncated bool
	switch {
	case tier < 0:
		tier, truncated = selectTier(chain, views, fromMs, toMs, maxPoints)
	case tier >= len(views):
		return nil, fmt.Errorf("metric '%s' tier %d: %w", name, tier, errors.ErrTierNotFound)
	default:
		truncated = reach(chain, views[tier], tier) > fromMs
	}
	view := views[tier]

	res := &Result{
		Metric:    name,
		Tier:      tier,
		Truncated: truncated,
		Decimated: view.Count(fromMs, toMs) > maxPoints,
	}
	res.Samples = slices.Collect(view.Decimate(fromMs, toMs, maxPoints))

	log.Debug("query",
		"metric", name,
		"tier", tier,
		"samples", len(res.Samples),
		"truncated", res.Truncated,
		"decimated", res.Decimated)

	return res, nil
}

// selectTier picks the tier to answer from.
//
// A sample stands for the period ending at its timestamp, so a tier reaches
// back to its oldest timestamp minus its period. The finest reaching tier
// that fits maxPoints wins; when none fits, the coarsest reaching tier is
// used. When no tier reaches fromMs the tier reaching furthest back answers
// and the result is truncated.
func selectTier(chain *aggregate.Chain, views []*buffer.View, fromMs, toMs int64, maxPoints int) (int, bool) {
	coarsest := -1
	for i, v := range views {
		if reach(chain, v, i) > fromMs {
			continue
		}
		if v.Count(fromMs, toMs) <= maxPoints {
			return i, false
		}
		coarsest = i
	}
	if coarsest >= 0 {
		return coarsest, false
	}

	best, bestReach := 0, int64(math.MaxInt64)
	for i, v := range views {
		// Ties go to the finer tier.
		if r := reach(chain, v, i); r < bestReach {
			best, bestReach = i, r
		}
	}
	return best, true
}

func reach(chain *aggregate.Chain, v *buffer.View, tier int) int64 {
	oldest, ok := v.Oldest()
	if !ok {
		return math.MaxInt64
	}
	return oldest.TimestampMs - chain.Tier(tier).PeriodMs()
}

// Summarize aggregates samples: count, mean, extremes and, when accuracy is
// positive, DDSketch percentiles of the mean values with that relative
// accuracy. Max is taken from Sample.Max so rollups report the true peak.
func Summarize(samples []types.Sample, accuracy float64) types.Summary {
	agg := aggregate.New(false)
	if accuracy > 0 {
		agg = aggregate.NewWithAccuracy(accuracy)
	}
	for _, s := range samples {
		agg.AddSample(s)
	}
	return agg.Result()
}

// Stats returns query statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		QueriesExecuted: e.queries.Load(),
		SamplesReturned: e.samplesOut.Load(),
		Truncated:       e.truncations.Load(),
		Decimated:       e.decimations.Load(),
		Errors:          e.queryErrors.Load(),
	}
}
