package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/vmstats/internal/errors"
)

// Period is a named chart range.
type Period string

const (
	PeriodDay    Period = "day"
	PeriodWeek   Period = "week"
	PeriodMonth  Period = "month"
	PeriodYear   Period = "year"
	PeriodAll    Period = "all"
	PeriodCustom Period = "custom"
)

const (
	day = 24 * time.Hour

	// DateLayout is the date format of custom ranges.
	DateLayout = "2006-01-02"

	customSeparator = "|"
	maxHistoryYears = 5
)

var periodDurations = map[Period]time.Duration{
	PeriodDay:   day,
	PeriodWeek:  7 * day,
	PeriodMonth: 31 * day,
	PeriodYear:  366 * day,
	PeriodAll:   2 * 366 * day,
}

// Periods returns the named periods in display order.
func Periods() []Period {
	return []Period{PeriodDay, PeriodWeek, PeriodMonth, PeriodYear, PeriodAll}
}

// Duration returns the length of a named period, 0 for custom.
func (p Period) Duration() time.Duration {
	return periodDurations[p]
}

// Label returns the display label.
func (p Period) Label() string {
	switch p {
	case PeriodDay:
		return "1 Day"
	case PeriodWeek:
		return "1 Week"
	case PeriodMonth:
		return "1 Month"
	case PeriodYear:
		return "1 Year"
	case PeriodAll:
		return "All"
	default:
		return "Custom"
	}
}

// Range is either a named period ending now or a custom span of whole days.
type Range struct {
	Period Period
	Start  time.Time // custom only
	End    time.Time // custom only
}

// PeriodRange returns the range for a named period.
func PeriodRange(p Period) Range {
	return Range{Period: p}
}

// CustomRange returns a custom range from the start of the first day to the
// end of the last. The start is clamped to five years before now and the end
// to the end of today; a start after the end collapses onto the end.
func CustomRange(start, end, now time.Time) Range {
	start = startOfDay(start)
	end = endOfDay(end)

	minStart := startOfDay(now.AddDate(-maxHistoryYears, 0, 0))
	maxEnd := endOfDay(now)
	if start.Before(minStart) {
		start = minStart
	}
	if end.After(maxEnd) {
		end = maxEnd
	}
	if start.After(end) {
		start = end
	}
	return Range{Period: PeriodCustom, Start: start, End: end}
}

// ParseRange parses "day", "week", "month", "year", "all" or a custom
// "YYYY-MM-DD|YYYY-MM-DD" range. An empty end date means today. Dates are
// interpreted in the location of now.
func ParseRange(s string, now time.Time) (Range, error) {
	s = strings.TrimSpace(s)

	startStr, endStr, custom := strings.Cut(s, customSeparator)
	if !custom {
		p := Period(strings.ToLower(s))
		if _, ok := periodDurations[p]; !ok {
			return Range{}, fmt.Errorf("unknown period '%s': %w", s, errors.ErrInvalidRange)
		}
		return PeriodRange(p), nil
	}

	start, err := time.ParseInLocation(DateLayout, strings.TrimSpace(startStr), now.Location())
	if err != nil {
		return Range{}, fmt.Errorf("start date '%s': %w", startStr, errors.ErrInvalidRange)
	}

	end := now
	if endStr = strings.TrimSpace(endStr); endStr != "" {
		end, err = time.ParseInLocation(DateLayout, endStr, now.Location())
		if err != nil {
			return Range{}, fmt.Errorf("end date '%s': %w", endStr, errors.ErrInvalidRange)
		}
	}

	return CustomRange(start, end, now), nil
}

// Bounds returns the range in Unix milliseconds relative to now.
func (r Range) Bounds(now time.Time) (fromMs, toMs int64) {
	if r.Period == PeriodCustom {
		return r.Start.UnixMilli(), r.End.UnixMilli()
	}
	return now.Add(-r.Period.Duration()).UnixMilli(), now.UnixMilli()
}

// String returns the range in the form ParseRange accepts.
func (r Range) String() string {
	if r.Period == PeriodCustom {
		return r.Start.Format(DateLayout) + customSeparator + r.End.Format(DateLayout)
	}
	return string(r.Period)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}
