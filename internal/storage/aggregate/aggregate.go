package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

// DefaultAccuracy is the relative accuracy of percentile sketches (1%).
const DefaultAccuracy = 0.01

// StreamingAggregate maintains running statistics over a stream of samples.
// It supports optional percentile calculation using DDSketch.
type StreamingAggregate struct {
	mu sync.Mutex

	// Running statistics
	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs int64
	lastTs  int64

	// DDSketch for percentiles (nil if disabled)
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// New creates a new StreamingAggregate.
func New(enablePercentile bool) *StreamingAggregate {
	if enablePercentile {
		return NewWithAccuracy(DefaultAccuracy)
	}
	return &StreamingAggregate{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
}

// NewWithAccuracy creates a new StreamingAggregate with custom percentile accuracy.
func NewWithAccuracy(accuracy float64) *StreamingAggregate {
	agg := &StreamingAggregate{
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		accuracy: accuracy,
	}

	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err == nil {
		agg.sketch = sketch
	}

	return agg
}

// Add adds a value to the aggregate.
func (a *StreamingAggregate) Add(value float64, timestampMs int64) {
	a.AddSample(types.NewSample(timestampMs, value))
}

// AddSample adds a sample to the aggregate. The sum and minimum use
// Sample.Value, the maximum uses Sample.Max so rollups keep their peaks.
// Non-finite samples are ignored.
func (a *StreamingAggregate) AddSample(s types.Sample) {
	if !s.IsFinite() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += s.Value

	if s.Value < a.min {
		a.min = s.Value
	}
	if s.Max > a.max {
		a.max = s.Max
	}

	if a.firstTs == 0 || s.TimestampMs < a.firstTs {
		a.firstTs = s.TimestampMs
	}
	if s.TimestampMs > a.lastTs {
		a.lastTs = s.TimestampMs
	}

	if a.sketch != nil {
		// DDSketch rejects values it cannot map; the sample still counts.
		_ = a.sketch.Add(s.Value)
	}
}

// Count returns the number of samples added.
func (a *StreamingAggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// IsEmpty returns true if no samples have been added.
func (a *StreamingAggregate) IsEmpty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count == 0
}

// Rollup returns the rollup sample for a window ending at endMs: the mean
// of the values and the largest maximum. Returns false if the aggregate is
// empty, since an empty window produces no rollup.
func (a *StreamingAggregate) Rollup(endMs int64) (types.Sample, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 {
		return types.Sample{}, false
	}
	return types.Sample{
		TimestampMs: endMs,
		Value:       a.sum / float64(a.count),
		Max:         a.max,
	}, true
}

// Result returns the aggregation result.
func (a *StreamingAggregate) Result() types.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := types.Summary{
		Count:   a.count,
		Sum:     a.sum,
		FirstTs: a.firstTs,
		LastTs:  a.lastTs,
	}

	if a.count > 0 {
		result.Avg = a.sum / float64(a.count)
		result.Min = a.min
		result.Max = a.max
	}

	// Calculate percentiles if enabled and we have data
	if a.sketch != nil && a.count > 0 && !a.sketch.IsEmpty() {
		p50, _ := a.sketch.GetValueAtQuantile(0.50)
		p90, _ := a.sketch.GetValueAtQuantile(0.90)
		p95, _ := a.sketch.GetValueAtQuantile(0.95)
		p99, _ := a.sketch.GetValueAtQuantile(0.99)
		result.SetPercentiles(p50, p90, p95, p99)
	}

	return result
}

// Reset clears the aggregate for a new window.
func (a *StreamingAggregate) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count = 0
	a.sum = 0
	a.min = math.MaxFloat64
	a.max = -math.MaxFloat64
	a.firstTs = 0
	a.lastTs = 0

	if a.sketch != nil {
		a.sketch.Clear()
	}
}
