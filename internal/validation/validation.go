// Package validation provides centralized input validation for vmstats.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	ASCIIOnly    bool
}

// MetricNameRules returns the rules for metric names. Names double as
// directory names in the storage layout and are kept short.
func MetricNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    20,
		AllowDots:    false,
		AllowHyphens: true,
		AllowUnders:  true,
		ASCIIOnly:    true,
	}
}

// PropertyRules returns rules for managed-bean name keys.
func PropertyRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if rules.ASCIIOnly && r > unicode.MaxASCII {
		return false
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateMetricName validates a metric name with the metric rules.
func ValidateMetricName(name string) error {
	return ValidateName(name, MetricNameRules())
}

// =============================================================================
// Series References
// =============================================================================

// SeriesRef represents a parsed "metric[/tier]" reference.
type SeriesRef struct {
	Metric string
	Tier   int // -1 when no tier was given
}

// ParseSeriesRef parses "metric", "metric/2" or "metric/t2".
func ParseSeriesRef(ref string) (*SeriesRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty series reference")
	}

	metric, tierStr, hasTier := strings.Cut(ref, "/")
	metric = strings.TrimSpace(metric)

	if err := ValidateMetricName(metric); err != nil {
		return nil, fmt.Errorf("invalid metric in series reference: %w", err)
	}

	out := &SeriesRef{Metric: metric, Tier: -1}
	if !hasTier {
		return out, nil
	}

	tierStr = strings.TrimPrefix(strings.TrimSpace(tierStr), "t")
	tier, err := strconv.Atoi(tierStr)
	if err != nil || tier < 0 {
		return nil, fmt.Errorf("invalid tier in series reference '%s'", ref)
	}
	out.Tier = tier
	return out, nil
}

// String returns the string representation of the series reference.
func (r *SeriesRef) String() string {
	if r.Tier < 0 {
		return r.Metric
	}
	return r.Metric + "/t" + strconv.Itoa(r.Tier)
}

// =============================================================================
// SQL Patterns
// =============================================================================

var sqlLikeMetaChars = regexp.MustCompile(`[%_\[\]\\]`)

// EscapeLikePattern escapes special characters in a LIKE pattern.
// Use with ESCAPE '\'.
func EscapeLikePattern(pattern string) string {
	return sqlLikeMetaChars.ReplaceAllStringFunc(pattern, func(s string) string {
		return "\\" + s
	})
}

// SafeLikePrefix creates a safe LIKE prefix pattern.
func SafeLikePrefix(prefix string) string {
	return EscapeLikePattern(prefix) + "%"
}
