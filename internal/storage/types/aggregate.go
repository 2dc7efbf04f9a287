package types

import "time"

// Summary represents aggregated statistics over a range of samples.
// It is produced by the query engine for chart legends and the shell.
type Summary struct {
	// Range covered by the summarized samples
	FirstTs int64 // Unix milliseconds of the first sample
	LastTs  int64 // Unix milliseconds of the last sample

	// Basic statistics (always present)
	Count int64   // Number of samples
	Sum   float64 // Sum of all values
	Min   float64 // Minimum value
	Max   float64 // Maximum value (of Sample.Max)
	Avg   float64 // Average value (Sum / Count)

	// Percentiles (optional, nil if not enabled)
	P50 *float64 // 50th percentile (median)
	P90 *float64 // 90th percentile
	P95 *float64 // 95th percentile
	P99 *float64 // 99th percentile
}

// FirstTime returns the first timestamp as a time.Time.
func (s *Summary) FirstTime() time.Time {
	return time.UnixMilli(s.FirstTs)
}

// LastTime returns the last timestamp as a time.Time.
func (s *Summary) LastTime() time.Time {
	return time.UnixMilli(s.LastTs)
}

// Duration returns the time spanned by the summarized samples.
func (s *Summary) Duration() time.Duration {
	return time.Duration(s.LastTs-s.FirstTs) * time.Millisecond
}

// IsEmpty returns true if no samples were aggregated.
func (s *Summary) IsEmpty() bool {
	return s.Count == 0
}

// HasPercentiles returns true if percentile data is available.
func (s *Summary) HasPercentiles() bool {
	return s.P50 != nil
}

// SetPercentiles sets all percentile values.
func (s *Summary) SetPercentiles(p50, p90, p95, p99 float64) {
	s.P50 = &p50
	s.P90 = &p90
	s.P95 = &p95
	s.P99 = &p99
}
