package types

import (
	"math"
	"testing"
	"time"

	"github.com/xtxerr/vmstats/internal/errors"
)

func TestNewSample(t *testing.T) {
	s := NewSample(1000, 42.5)
	if s.Value != 42.5 || s.Max != 42.5 {
		t.Errorf("expected value=max=42.5, got %v/%v", s.Value, s.Max)
	}
	if !s.IsFinite() {
		t.Error("sample should be finite")
	}
	if NewSample(0, math.NaN()).IsFinite() {
		t.Error("NaN sample reported finite")
	}
	if NewSample(0, math.Inf(1)).IsFinite() {
		t.Error("Inf sample reported finite")
	}
}

func TestSampleTime(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	s := Sample{TimestampMs: now.UnixMilli()}

	if !s.Time().Equal(now) {
		t.Errorf("expected %v, got %v", now, s.Time())
	}
}

func TestRecordBatch(t *testing.T) {
	batch := NewRecordBatch(10)

	if batch.Len() != 0 {
		t.Errorf("expected empty batch")
	}

	batch.Add(Record{Metric: "heapUsed", Tier: 0})
	batch.AddAll("threads", []TierSample{{Tier: 0}, {Tier: 1}})

	if batch.Len() != 3 {
		t.Errorf("expected 3 records, got %d", batch.Len())
	}
	if batch.Records[2].Metric != "threads" || batch.Records[2].Tier != 1 {
		t.Errorf("unexpected record %+v", batch.Records[2])
	}

	batch.Clear()
	if batch.Len() != 0 {
		t.Errorf("expected empty batch after clear")
	}
}

func TestSummaryPercentiles(t *testing.T) {
	s := Summary{}

	if s.HasPercentiles() {
		t.Error("expected no percentiles")
	}

	s.SetPercentiles(50.0, 90.0, 95.0, 99.0)

	if !s.HasPercentiles() {
		t.Error("expected percentiles")
	}
	if *s.P50 != 50.0 {
		t.Errorf("expected P50=50.0, got %v", *s.P50)
	}
	if *s.P99 != 99.0 {
		t.Errorf("expected P99=99.0, got %v", *s.P99)
	}
}

func TestTierSpecCoverage(t *testing.T) {
	tier := TierSpec{Period: time.Hour, Capacity: 168}
	if tier.Coverage() != 7*24*time.Hour {
		t.Errorf("expected one week, got %v", tier.Coverage())
	}
}

func TestTierSpecString(t *testing.T) {
	tests := []struct {
		tier     TierSpec
		expected string
	}{
		{TierSpec{Period: time.Second, Capacity: 60}, "1s×60"},
		{TierSpec{Period: time.Minute, Capacity: 60}, "1m×60"},
		{TierSpec{Period: time.Hour, Capacity: 168}, "1h×168"},
		{TierSpec{Period: 48 * time.Hour, Capacity: 366}, "2d×366"},
	}

	for _, tt := range tests {
		if tt.tier.String() != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, tt.tier.String())
		}
	}
}

func TestTierWindowEnd(t *testing.T) {
	tier := TierSpec{Period: time.Minute, Capacity: 60}
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		ts       int64
		expected int64
	}{
		{base, base},
		{base + 1, base + 60_000},
		{base + 59_999, base + 60_000},
		{base + 60_000, base + 60_000},
		{base + 60_001, base + 120_000},
	}

	for _, tt := range tests {
		if got := tier.WindowEnd(tt.ts); got != tt.expected {
			t.Errorf("WindowEnd(%d): expected %d, got %d", tt.ts-base, tt.expected-base, got-base)
		}
	}
}

func TestValidateTiers(t *testing.T) {
	tests := []struct {
		name  string
		tiers []TierSpec
		want  error
	}{
		{"empty", nil, errors.ErrNoTiers},
		{"valid", []TierSpec{{time.Second, 60}, {time.Minute, 60}}, nil},
		{"zero capacity", []TierSpec{{time.Second, 0}}, errors.ErrInvalidTier},
		{"zero period", []TierSpec{{0, 10}}, errors.ErrInvalidTier},
		{"sub-millisecond", []TierSpec{{time.Millisecond + time.Microsecond, 10}}, errors.ErrInvalidTier},
		{"not increasing", []TierSpec{{time.Minute, 60}, {time.Minute, 60}}, errors.ErrInvalidTier},
	}

	for _, tt := range tests {
		err := ValidateTiers(tt.tiers)
		if tt.want == nil && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestDefaultTiers(t *testing.T) {
	tiers := DefaultTiers(time.Minute)
	if err := ValidateTiers(tiers); err != nil {
		t.Fatalf("default tiers invalid: %v", err)
	}
	if len(tiers) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(tiers))
	}
	if tiers[0].Capacity != 1440 {
		t.Errorf("expected 1440 raw samples per day, got %d", tiers[0].Capacity)
	}
	if tiers[3].Coverage() != 732*24*time.Hour {
		t.Errorf("expected 732 days of coverage, got %v", tiers[3].Coverage())
	}

	// An interval coarser than hourly drops the hourly tier.
	tiers = DefaultTiers(2 * time.Hour)
	if err := ValidateTiers(tiers); err != nil {
		t.Fatalf("default tiers invalid: %v", err)
	}
	if len(tiers) != 3 {
		t.Errorf("expected 3 tiers, got %d", len(tiers))
	}
}

func TestParseTierSpec(t *testing.T) {
	tests := []struct {
		input    string
		expected TierSpec
		hasError bool
	}{
		{"1s:60", TierSpec{time.Second, 60}, false},
		{"1h:168", TierSpec{time.Hour, 168}, false},
		{"2d:366", TierSpec{48 * time.Hour, 366}, false},
		{"1h", TierSpec{}, true},
		{"xh:10", TierSpec{}, true},
		{"1h:abc", TierSpec{}, true},
		{"1h:0", TierSpec{}, true},
	}

	for _, tt := range tests {
		result, err := ParseTierSpec(tt.input)
		if tt.hasError && err == nil {
			t.Errorf("expected error for input %s", tt.input)
		}
		if !tt.hasError && err != nil {
			t.Errorf("unexpected error for input %s: %v", tt.input, err)
		}
		if !tt.hasError && result != tt.expected {
			t.Errorf("input %s: expected %v, got %v", tt.input, tt.expected, result)
		}
	}
}
