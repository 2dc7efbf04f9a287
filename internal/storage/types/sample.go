package types

import (
	"math"
	"time"
)

// Sample is a single timestamped value of a metric.
// Samples are immutable once written to a tier.
type Sample struct {
	// TimestampMs is the Unix timestamp in milliseconds. For rollups this is
	// the end of the aggregation window.
	TimestampMs int64

	// Value is the measured value, or the mean of the window for rollups.
	Value float64

	// Max is the largest raw value of the window. Equal to Value for raw samples.
	Max float64
}

// NewSample creates a raw sample.
func NewSample(timestampMs int64, value float64) Sample {
	return Sample{TimestampMs: timestampMs, Value: value, Max: value}
}

// Time returns the timestamp as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.TimestampMs)
}

// IsFinite reports whether both values are usable.
func (s Sample) IsFinite() bool {
	return !math.IsNaN(s.Value) && !math.IsInf(s.Value, 0) &&
		!math.IsNaN(s.Max) && !math.IsInf(s.Max, 0)
}

// Record is a sample addressed to one metric's tier.
// It is the unit handed from the collector to the store.
type Record struct {
	Metric string
	Tier   int
	Sample Sample
}

// TierSample is a sample produced for a tier of the current metric.
type TierSample struct {
	Tier   int
	Sample Sample
}

// RecordBatch represents a collection of records for batch processing.
type RecordBatch struct {
	Records []Record
}

// NewRecordBatch creates a new batch with the given capacity.
func NewRecordBatch(capacity int) *RecordBatch {
	return &RecordBatch{
		Records: make([]Record, 0, capacity),
	}
}

// Add appends a record to the batch.
func (b *RecordBatch) Add(r Record) {
	b.Records = append(b.Records, r)
}

// AddAll appends the tier samples of one metric.
func (b *RecordBatch) AddAll(metric string, samples []TierSample) {
	for _, ts := range samples {
		b.Records = append(b.Records, Record{Metric: metric, Tier: ts.Tier, Sample: ts.Sample})
	}
}

// Len returns the number of records in the batch.
func (b *RecordBatch) Len() int {
	return len(b.Records)
}

// Clear resets the batch for reuse.
func (b *RecordBatch) Clear() {
	b.Records = b.Records[:0]
}
