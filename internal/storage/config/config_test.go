package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	vmerrors "github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.MemoryOnly() {
		t.Error("expected memory-only default")
	}

	if cfg.Persistence.Mode != "async" {
		t.Errorf("expected async persistence, got %s", cfg.Persistence.Mode)
	}

	if cfg.Persistence.Durability != "buffer" {
		t.Errorf("expected buffer durability, got %s", cfg.Persistence.Durability)
	}

	if !cfg.Query.Percentile.Enabled {
		t.Error("expected percentile enabled by default")
	}

	if cfg.Query.MaxPoints <= 0 {
		t.Error("expected positive max_points")
	}
}

func TestConfigValidate(t *testing.T) {
	// Valid config
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad sync mode", func(c *Config) { c.WAL.SyncMode = "sync" }},
		{"bad persistence mode", func(c *Config) { c.Persistence.Mode = "later" }},
		{"bad durability", func(c *Config) { c.Persistence.Durability = "maybe" }},
		{"zero queue", func(c *Config) { c.Persistence.QueueSize = 0 }},
		{"bad compression", func(c *Config) { c.Retention.Archive.Compression.Algorithm = "invalid" }},
		{"zero retention interval", func(c *Config) { c.Retention.Interval = 0 }},
		{"zero max points", func(c *Config) { c.Query.MaxPoints = 0 }},
		{"bad memory limit", func(c *Config) { c.Query.MemoryLimit = "lots" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !vmerrors.Is(err, vmerrors.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSyncModeAllowsZeroQueue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Persistence.Mode = "sync"
	cfg.Persistence.QueueSize = 0

	if err := cfg.Validate(); err != nil {
		t.Errorf("sync mode does not use the queue: %v", err)
	}
}

func TestBackpressureValidation(t *testing.T) {
	cfg := DefaultConfig()

	// Invalid: warning > critical
	cfg.Backpressure.Thresholds.Warning = 0.9
	cfg.Backpressure.Thresholds.Critical = 0.8
	if err := cfg.Backpressure.Validate(); err == nil {
		t.Error("expected error when warning > critical")
	}

	// Disabled: not checked
	cfg.Backpressure.Enabled = false
	if err := cfg.Backpressure.Validate(); err != nil {
		t.Errorf("disabled backpressure should pass: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	// Create temp config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	configContent := `
dir: /tmp/vmstats
wal:
  sync_mode: fsync
  max_segment_size: 1048576
persistence:
  mode: sync
  durability: drop
retention:
  enabled: true
  interval: 30m
  archive:
    enabled: true
    compression:
      algorithm: snappy
query:
  max_points: 200
  percentile:
    enabled: false
  memory_limit: 1GB
  timeout: 15s
  max_rows: 500
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Dir != "/tmp/vmstats" {
		t.Errorf("expected dir=/tmp/vmstats, got %s", cfg.Dir)
	}

	if cfg.WAL.SyncMode != "fsync" {
		t.Errorf("expected fsync, got %s", cfg.WAL.SyncMode)
	}

	if cfg.Persistence.Durability != "drop" {
		t.Errorf("expected drop, got %s", cfg.Persistence.Durability)
	}

	// Unset keys keep their defaults
	if cfg.Persistence.QueueSize != DefaultConfig().Persistence.QueueSize {
		t.Errorf("queue_size default lost: %d", cfg.Persistence.QueueSize)
	}

	if cfg.Retention.Interval != 30*time.Minute {
		t.Errorf("expected interval=30m, got %v", cfg.Retention.Interval)
	}

	if cfg.Query.Percentile.Enabled {
		t.Error("expected percentile disabled")
	}

	if cfg.ArchiveDir() != "/tmp/vmstats/.archive" {
		t.Errorf("unexpected archive dir %s", cfg.ArchiveDir())
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestCalculateRequirements(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = "/data/vmstats"

	req := cfg.CalculateRequirements(map[string][]types.TierSpec{
		"heapUsed": {
			{Period: time.Second, Capacity: 100},
			{Period: time.Minute, Capacity: 10},
		},
	})

	if req.Metrics != 1 || req.Tiers != 2 {
		t.Errorf("metrics=%d tiers=%d", req.Metrics, req.Tiers)
	}

	if req.RingBytes != 110*bytesPerSample {
		t.Errorf("RingBytes = %d", req.RingBytes)
	}

	expectedLog := int64(100*bytesPerRawRecord + 10*bytesPerRollupRecord)
	if req.LogBytes != expectedLog {
		t.Errorf("LogBytes = %d, want %d", req.LogBytes, expectedLog)
	}

	if req.TotalStorageBytes != expectedLog+expectedLog/4 {
		t.Errorf("TotalStorageBytes = %d", req.TotalStorageBytes)
	}

	if req.SamplesPerDay != 86400+1440 {
		t.Errorf("SamplesPerDay = %d", req.SamplesPerDay)
	}

	if req.QueueBytes != int64(cfg.Persistence.QueueSize)*bytesPerQueuedRecord {
		t.Errorf("QueueBytes = %d", req.QueueBytes)
	}
}

func TestCalculateRequirementsMemoryOnly(t *testing.T) {
	cfg := DefaultConfig()

	req := cfg.CalculateRequirements(map[string][]types.TierSpec{
		"threads": types.DefaultTiers(time.Second),
	})

	if req.TotalStorageBytes != 0 || req.QueueBytes != 0 {
		t.Errorf("memory-only config needs no disk: %+v", req)
	}
	if req.RingBytes <= 0 {
		t.Error("expected positive ring bytes")
	}
}

func TestFormatRequirements(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = "/data/vmstats"

	req := cfg.CalculateRequirements(map[string][]types.TierSpec{
		"heapUsed": types.DefaultTiers(time.Second),
	})
	output := req.FormatRequirements()

	for _, want := range []string{"Tier Buffers", "Total Storage", "Samples/day"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		ok       bool
	}{
		{"1GB", 1 * 1024 * 1024 * 1024, true},
		{"512MB", 512 * 1024 * 1024, true},
		{"1024KB", 1024 * 1024, true},
		{"256 mb", 256 * 1024 * 1024, true},
		{"", 0, true},
		{"GB", 0, false},
		{"12PB", 0, false},
	}

	for _, tt := range tests {
		result, ok := parseMemoryLimit(tt.input)
		if result != tt.expected || ok != tt.ok {
			t.Errorf("parseMemoryLimit(%s): expected %d/%v, got %d/%v", tt.input, tt.expected, tt.ok, result, ok)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{500, "500 B"},
		{1024, "1.00 KB"},
		{1024 * 1024, "1.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1024 * 1024 * 1024 * 1024, "1.00 TB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("formatBytes(%d): expected %s, got %s", tt.input, tt.expected, result)
		}
	}
}

func TestLogDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = "/data/vmstats"

	tests := []struct {
		metric   string
		tier     int
		expected string
	}{
		{"heapUsed", 0, "/data/vmstats/heapUsed/t0"},
		{"threads", 3, "/data/vmstats/threads/t3"},
	}

	for _, tt := range tests {
		result := cfg.LogDir(tt.metric, tt.tier)
		if result != tt.expected {
			t.Errorf("LogDir(%s, %d): expected %s, got %s", tt.metric, tt.tier, tt.expected, result)
		}
	}
}

func TestParseTierDirName(t *testing.T) {
	if tier, ok := ParseTierDirName("t12"); !ok || tier != 12 {
		t.Errorf("ParseTierDirName(t12) = %d, %v", tier, ok)
	}
	for _, name := range []string{"t", "x1", "t-1", "tier0"} {
		if _, ok := ParseTierDirName(name); ok {
			t.Errorf("ParseTierDirName(%s) should fail", name)
		}
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Dir = filepath.Join(tmpDir, "storage")
	cfg.Retention.Archive.Enabled = true

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	for _, dir := range []string{cfg.Dir, cfg.ArchiveDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	// Memory-only is a no-op
	if err := DefaultConfig().EnsureDirectories(); err != nil {
		t.Errorf("memory-only EnsureDirectories: %v", err)
	}
}
