// Package loader handles configuration file loading and validation for
// vmstatsd.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Processing include directives
//   - Resolving per-statistic tier layouts and building the registry
package loader

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/vmstats/internal/constants"
	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/registry"
	"github.com/xtxerr/vmstats/internal/storage/types"
	"github.com/xtxerr/vmstats/internal/sysinfo"
	"github.com/xtxerr/vmstats/internal/validation"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. Unknown keys are rejected.
// The result still needs Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Start with defaults
	cfg := DefaultConfig()
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Process includes (load additional statistics files)
	baseDir := filepath.Dir(path)
	if err := processIncludes(cfg, baseDir); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decode expands environment variables and decodes data into out.
// An empty document leaves out unchanged.
func decode(data []byte, out interface{}) error {
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// processIncludes loads and merges included configuration files.
func processIncludes(cfg *Config, baseDir string) error {
	for _, pattern := range cfg.Include {
		// Resolve relative paths
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		// Expand glob pattern
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			if err := loadInclude(cfg, match); err != nil {
				return fmt.Errorf("load include %q: %w", match, err)
			}
		}
	}

	return nil
}

// includeFile is the part of the configuration an include may carry.
type includeFile struct {
	Statistics map[string]*StatisticConfig `yaml:"statistics"`
}

// loadInclude loads a single include file and merges its statistics.
// Later files win.
func loadInclude(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial includeFile
	if err := decode(data, &partial); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if cfg.Statistics == nil {
		cfg.Statistics = make(map[string]*StatisticConfig)
	}
	for name, st := range partial.Statistics {
		cfg.Statistics[name] = st
	}

	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if err := cfg.Collector.Validate(); err != nil {
		errs.Add(err)
	}
	if err := cfg.Storage.Validate(); err != nil {
		errs.Add(fmt.Errorf("storage: %w", err))
	}

	if _, err := DefaultTiers(cfg); err != nil {
		errs.Add(fmt.Errorf("tiers: %w", err))
	}

	for name, st := range cfg.Statistics {
		if err := validation.ValidateMetricName(name); err != nil {
			errs.AddField(fmt.Sprintf("statistics.%s", name), err.Error())
			continue
		}
		if st == nil || len(st.Tiers) == 0 {
			continue
		}
		if _, err := parseTiers(st.Tiers, cfg); err != nil {
			errs.Add(fmt.Errorf("statistics.%s.tiers: %w", name, err))
		}
	}

	if _, ok := logging.ParseLevel(cfg.Logging.Level); !ok {
		errs.AddField("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}
	if !constants.IsValidLogFormat(cfg.Logging.Format) {
		errs.AddField("logging.format", fmt.Sprintf("must be text or json, got %q", cfg.Logging.Format))
	}

	if cfg.Metrics.Listen != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs.AddField("metrics.path", "must start with '/'")
	}

	if cfg.ShutdownTimeout <= 0 {
		errs.AddField("shutdown_timeout", "must be positive")
	}

	return errs.Err()
}

// =============================================================================
// Tier Layouts
// =============================================================================

// DefaultTiers returns the configured default tier layout, or the standard
// layout for the collection interval when none is configured.
func DefaultTiers(cfg *Config) ([]types.TierSpec, error) {
	if len(cfg.Tiers) == 0 {
		return types.DefaultTiers(cfg.Collector.Interval), nil
	}
	return parseTiers(cfg.Tiers, cfg)
}

// parseTiers parses a layout. The raw tier must match the collection
// interval, since the collector appends one raw sample per tick.
func parseTiers(specs []string, cfg *Config) ([]types.TierSpec, error) {
	tiers := make([]types.TierSpec, 0, len(specs))
	for _, s := range specs {
		t, err := types.ParseTierSpec(s)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}

	if err := types.ValidateTiers(tiers); err != nil {
		return nil, err
	}
	if tiers[0].Period != cfg.Collector.Interval {
		return nil, fmt.Errorf("raw tier period %v differs from collector interval %v: %w",
			tiers[0].Period, cfg.Collector.Interval, errors.ErrInvalidTier)
	}
	return tiers, nil
}

// Layouts returns the tier layout of every enabled statistic.
func Layouts(cfg *Config, defs []sysinfo.Definition) (map[string][]types.TierSpec, error) {
	defaults, err := DefaultTiers(cfg)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]types.TierSpec, len(defs))
	for _, d := range defs {
		st := cfg.Statistics[d.Name]
		if !st.IsEnabled() {
			continue
		}
		tiers := defaults
		if st != nil && len(st.Tiers) > 0 {
			if tiers, err = parseTiers(st.Tiers, cfg); err != nil {
				return nil, fmt.Errorf("statistics.%s.tiers: %w", d.Name, err)
			}
		}
		out[d.Name] = tiers
	}
	return out, nil
}

// BuildRegistry registers every enabled statistic with its tier layout.
// Overrides naming a statistic that does not exist are configuration errors.
func BuildRegistry(cfg *Config, defs []sysinfo.Definition) (*registry.Registry, error) {
	known := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		known[d.Name] = struct{}{}
	}
	for name := range cfg.Statistics {
		if _, ok := known[name]; !ok {
			return nil, errors.NewInvalidValue("statistics", name, "unknown statistic")
		}
	}

	layouts, err := Layouts(cfg, defs)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	for _, d := range defs {
		tiers, ok := layouts[d.Name]
		if !ok {
			continue
		}

		opts := registry.Options{
			Label:       d.Label,
			Unit:        d.Unit,
			Description: d.Description,
			Tiers:       tiers,
		}
		if st := cfg.Statistics[d.Name]; st != nil && st.Label != "" {
			opts.Label = st.Label
		}

		if _, err := reg.Register(d.Name, d.Provider, opts); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// LogLevel returns the configured log level.
func LogLevel(cfg *Config) slog.Level {
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	return level
}
