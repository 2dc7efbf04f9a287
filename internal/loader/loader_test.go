package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/sysinfo"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vmstats.yaml", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Collector.Interval != time.Minute {
		t.Errorf("interval = %v, want 1m", cfg.Collector.Interval)
	}
	if !cfg.Storage.MemoryOnly() {
		t.Error("default storage should be memory only")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFull(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VMSTATS_DIR", "/var/lib/vmstats")

	path := writeFile(t, dir, "vmstats.yaml", `
collector:
  interval: 10s
  provider_timeout: 2s
tiers: ["10s:360", "1h:168"]
statistics:
  heapUsed:
    label: Heap
  threads:
    enabled: false
storage:
  dir: ${VMSTATS_DIR}
metrics:
  listen: 127.0.0.1:9464
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Collector.Interval != 10*time.Second {
		t.Errorf("interval = %v", cfg.Collector.Interval)
	}
	if cfg.Storage.Dir != "/var/lib/vmstats" {
		t.Errorf("storage.dir = %q, env not expanded", cfg.Storage.Dir)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics.path = %q, default lost", cfg.Metrics.Path)
	}
	if cfg.Statistics["threads"].IsEnabled() {
		t.Error("threads should be disabled")
	}
	if !cfg.Statistics["heapUsed"].IsEnabled() {
		t.Error("heapUsed should stay enabled")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vmstats.yaml", "collector:\n  intervall: 10s\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "conf.d"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "conf.d/a.yaml", "statistics:\n  heapUsed:\n    label: From A\n")
	writeFile(t, dir, "conf.d/b.yaml", "statistics:\n  gcTime:\n    enabled: false\n")
	path := writeFile(t, dir, "vmstats.yaml", `
include: ["conf.d/*.yaml"]
statistics:
  heapUsed:
    label: Main
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Statistics["heapUsed"].Label; got != "From A" {
		t.Errorf("heapUsed label = %q, want include to win", got)
	}
	if cfg.Statistics["gcTime"].IsEnabled() {
		t.Error("gcTime should be disabled by include")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Collector.ProviderTimeout = 0
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"
	cfg.ShutdownTimeout = 0
	cfg.Statistics = map[string]*StatisticConfig{"bad name!": {}}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error type = %T, want *ValidationErrors", err)
	}
	if len(verrs.Errors) != 5 {
		t.Errorf("got %d errors, want 5:\n%v", len(verrs.Errors), err)
	}
	if !errors.IsConfiguration(err) {
		t.Error("validation errors should be configuration errors")
	}
}

func TestValidateTiers(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []string
		wantErr bool
	}{
		{"standard", nil, false},
		{"custom", []string{"1m:60", "1h:24"}, false},
		{"raw mismatch", []string{"10s:60", "1h:24"}, true},
		{"not increasing", []string{"1m:60", "1m:24"}, true},
		{"malformed", []string{"1m"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Tiers = tt.tiers
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidTier) {
				t.Errorf("error %v should match ErrInvalidTier", err)
			}
		})
	}
}

func TestValidateMetricsPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Listen = ":9464"
	cfg.Metrics.Path = "metrics"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for relative metrics path")
	}

	cfg.Metrics.Listen = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("path is unused without listen address: %v", err)
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Statistics = map[string]*StatisticConfig{
		"heapUsed": {Label: "Heap"},
		"threads":  {Enabled: new(bool)},
		"gcTime":   {Tiers: []string{"1m:10", "10m:6"}},
	}

	defs := sysinfo.DefaultStatistics()
	reg, err := BuildRegistry(cfg, defs)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	if reg.Len() != len(defs)-1 {
		t.Errorf("registered %d, want %d", reg.Len(), len(defs)-1)
	}
	if _, err := reg.Lookup("threads"); !errors.IsNotFound(err) {
		t.Errorf("threads lookup error = %v, want not found", err)
	}

	heap, err := reg.Lookup("heapUsed")
	if err != nil {
		t.Fatal(err)
	}
	if heap.Label != "Heap" {
		t.Errorf("label = %q, want Heap", heap.Label)
	}
	if heap.Unit != "mb" {
		t.Errorf("unit = %q, want mb", heap.Unit)
	}

	gc, err := reg.Lookup("gcTime")
	if err != nil {
		t.Fatal(err)
	}
	if tiers := gc.Tiers(); len(tiers) != 2 || tiers[1].Period != 10*time.Minute {
		t.Errorf("gcTime tiers = %v", tiers)
	}
}

func TestBuildRegistryUnknownStatistic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Statistics = map[string]*StatisticConfig{"heapUsd": {}}

	_, err := BuildRegistry(cfg, sysinfo.DefaultStatistics())
	if err == nil {
		t.Fatal("expected error for unknown statistic")
	}
	if !strings.Contains(err.Error(), "heapUsd") {
		t.Errorf("error %q should name the statistic", err)
	}
}

func TestLayouts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Statistics = map[string]*StatisticConfig{"threads": {Enabled: new(bool)}}

	layouts, err := Layouts(cfg, sysinfo.DefaultStatistics())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := layouts["threads"]; ok {
		t.Error("disabled statistic should have no layout")
	}
	heap := layouts["heapUsed"]
	if len(heap) != 4 || heap[0].Period != time.Minute || heap[0].Capacity != 1440 {
		t.Errorf("heapUsed layout = %v", heap)
	}
}
