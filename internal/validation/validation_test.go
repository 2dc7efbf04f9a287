package validation

import (
	"strings"
	"testing"
)

func TestValidateMetricName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "heapUsed", false},
		{"with hyphen", "heap-used", false},
		{"with underscore", "heap_used", false},
		{"numbers", "123", false},
		{"max length", strings.Repeat("a", 20), false},
		{"too long", strings.Repeat("a", 21), true},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"hidden", ".hidden", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"control char", "a\x00b", true},
		{"with dot", "heap.used", true},
		{"space", "heap used", true},
		{"non ascii", "häap", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetricName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMetricName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePropertyName(t *testing.T) {
	rules := PropertyRules()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"with dot", "java.lang", false},
		{"unicode", "größe", false},
		{"hidden", ".type", true},
		{"too long", strings.Repeat("a", 256), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input, rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParseSeriesRef(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantMetric string
		wantTier   int
		wantErr    bool
	}{
		{"metric only", "heapUsed", "heapUsed", -1, false},
		{"numeric tier", "heapUsed/1", "heapUsed", 1, false},
		{"prefixed tier", "heapUsed/t2", "heapUsed", 2, false},
		{"spaces", " gcTime / t0 ", "gcTime", 0, false},
		{"empty", "", "", 0, true},
		{"empty metric", "/t1", "", 0, true},
		{"empty tier", "heapUsed/", "", 0, true},
		{"negative tier", "heapUsed/-1", "", 0, true},
		{"bad tier", "heapUsed/tx", "", 0, true},
		{"bad metric", "heap.used/1", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseSeriesRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSeriesRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if ref.Metric != tt.wantMetric {
				t.Errorf("ParseSeriesRef(%q).Metric = %q, want %q", tt.input, ref.Metric, tt.wantMetric)
			}
			if ref.Tier != tt.wantTier {
				t.Errorf("ParseSeriesRef(%q).Tier = %d, want %d", tt.input, ref.Tier, tt.wantTier)
			}
		})
	}
}

func TestSeriesRefString(t *testing.T) {
	if got := (&SeriesRef{Metric: "heapUsed", Tier: -1}).String(); got != "heapUsed" {
		t.Errorf("String() = %q", got)
	}
	if got := (&SeriesRef{Metric: "heapUsed", Tier: 3}).String(); got != "heapUsed/t3" {
		t.Errorf("String() = %q", got)
	}
}

func TestEscapeLikePattern(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no special", "hello", "hello"},
		{"percent", "100%", "100\\%"},
		{"underscore", "heap_used", "heap\\_used"},
		{"both", "100%_complete", "100\\%\\_complete"},
		{"backslash", "path\\file", "path\\\\file"},
		{"brackets", "[test]", "\\[test\\]"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeLikePattern(tt.input)
			if got != tt.want {
				t.Errorf("EscapeLikePattern(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSafeLikePrefix(t *testing.T) {
	got := SafeLikePrefix("gc_")
	want := "gc\\_%"
	if got != want {
		t.Errorf("SafeLikePrefix(%q) = %q, want %q", "gc_", got, want)
	}
}

func BenchmarkParseSeriesRef(b *testing.B) {
	ref := "heapUsed/t2"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseSeriesRef(ref)
	}
}
