package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/vmstats/internal/errors"
)

// TierSpec describes one resolution level of a metric's history.
// Tier 0 holds raw samples; every following tier holds rollups.
type TierSpec struct {
	// Period is the resolution of the tier. For the raw tier it is the
	// nominal collection interval.
	Period time.Duration `yaml:"period"`

	// Capacity is the number of samples the tier retains.
	Capacity int `yaml:"capacity"`
}

// Coverage returns the retention window of the tier (Period × Capacity).
func (t TierSpec) Coverage() time.Duration {
	return t.Period * time.Duration(t.Capacity)
}

// PeriodMs returns the period in milliseconds.
func (t TierSpec) PeriodMs() int64 {
	return t.Period.Milliseconds()
}

// String returns a compact representation such as "1h×168".
func (t TierSpec) String() string {
	return fmt.Sprintf("%s×%d", formatPeriod(t.Period), t.Capacity)
}

// Validate checks a single tier.
func (t TierSpec) Validate() error {
	if t.Period < time.Millisecond {
		return fmt.Errorf("period %v must be at least 1ms: %w", t.Period, errors.ErrInvalidTier)
	}
	if t.Period%time.Millisecond != 0 {
		return fmt.Errorf("period %v must be a whole number of milliseconds: %w", t.Period, errors.ErrInvalidTier)
	}
	if t.Capacity <= 0 {
		return fmt.Errorf("capacity %d must be positive: %w", t.Capacity, errors.ErrInvalidTier)
	}
	return nil
}

// WindowEnd returns the end of the right-closed window (end-period, end]
// that contains tsMs. Windows are aligned to the Unix epoch.
func (t TierSpec) WindowEnd(tsMs int64) int64 {
	p := t.PeriodMs()
	end := (tsMs / p) * p
	if end < tsMs {
		end += p
	}
	return end
}

// ValidateTiers checks an ordered tier list for one metric.
// The list must be non-empty and periods must be strictly increasing.
func ValidateTiers(tiers []TierSpec) error {
	if len(tiers) == 0 {
		return errors.ErrNoTiers
	}
	for i, t := range tiers {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tier %d: %w", i, err)
		}
		if i > 0 && t.Period <= tiers[i-1].Period {
			return fmt.Errorf("tier %d: period %v not coarser than %v: %w",
				i, t.Period, tiers[i-1].Period, errors.ErrInvalidTier)
		}
	}
	return nil
}

// DefaultTiers returns the standard layout for a collection interval:
// raw samples for one day, hourly for a week, six-hourly for a month,
// and two-day rollups for two years.
func DefaultTiers(interval time.Duration) []TierSpec {
	if interval <= 0 {
		interval = time.Minute
	}
	day := 24 * time.Hour
	rawCap := int(day / interval)
	if rawCap < 1 {
		rawCap = 1
	}

	tiers := []TierSpec{{Period: interval, Capacity: rawCap}}
	for _, t := range []TierSpec{
		{Period: time.Hour, Capacity: 168},
		{Period: 6 * time.Hour, Capacity: 124},
		{Period: 2 * day, Capacity: 366},
	} {
		if t.Period > interval {
			tiers = append(tiers, t)
		}
	}
	return tiers
}

// ParseTierSpec parses the "<period>:<capacity>" form used on command lines,
// for example "1h:168" or "2d:366".
func ParseTierSpec(s string) (TierSpec, error) {
	period, capacity, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TierSpec{}, fmt.Errorf("tier %q: expected <period>:<capacity>: %w", s, errors.ErrInvalidTier)
	}
	d, err := ParsePeriod(period)
	if err != nil {
		return TierSpec{}, fmt.Errorf("tier %q: %w", s, err)
	}
	n, err := strconv.Atoi(capacity)
	if err != nil {
		return TierSpec{}, fmt.Errorf("tier %q: capacity: %w", s, errors.ErrInvalidTier)
	}
	t := TierSpec{Period: d, Capacity: n}
	return t, t.Validate()
}

// ParsePeriod parses a duration, additionally accepting a "d" (day) suffix.
func ParsePeriod(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("period %q: %w", s, errors.ErrInvalidTier)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("period %q: %w", s, errors.ErrInvalidTier)
	}
	return d, nil
}

func formatPeriod(d time.Duration) string {
	day := 24 * time.Hour
	if d >= day && d%day == 0 {
		return strconv.Itoa(int(d/day)) + "d"
	}
	s := d.String()
	s = strings.Replace(s, "m0s", "m", 1)
	s = strings.Replace(s, "h0m", "h", 1)
	return s
}
