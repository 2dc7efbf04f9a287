package collector

import (
	"fmt"
	"time"

	"github.com/xtxerr/vmstats/config"
	"github.com/xtxerr/vmstats/internal/errors"
)

// Config holds collector configuration.
type Config struct {
	// Interval is the sampling period. Must be a positive whole number of
	// milliseconds.
	Interval time.Duration `yaml:"interval"`

	// ProviderTimeout bounds a single provider call.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// Parallelism limits concurrently running providers, 0 for no limit.
	Parallelism int `yaml:"parallelism"`

	// ErrorLogInterval throttles repeated error logs per metric. Zero logs
	// only the first error.
	ErrorLogInterval time.Duration `yaml:"error_log_interval"`
}

// DefaultConfig returns default collector configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:         config.DefaultCollectInterval,
		ProviderTimeout:  config.DefaultProviderTimeout,
		Parallelism:      config.DefaultProviderParallelism,
		ErrorLogInterval: config.DefaultErrorLogInterval,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Interval < time.Millisecond || c.Interval%time.Millisecond != 0 {
		errs = append(errs, fmt.Errorf("collector.interval %v must be a positive number of milliseconds: %w",
			c.Interval, errors.ErrInvalidInterval))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.NewInvalidValue("collector.provider_timeout", c.ProviderTimeout, "must be positive"))
	}
	if c.Parallelism < 0 {
		errs = append(errs, errors.NewInvalidValue("collector.parallelism", c.Parallelism, "must not be negative"))
	}
	if c.ErrorLogInterval < 0 {
		errs = append(errs, errors.NewInvalidValue("collector.error_log_interval", c.ErrorLogInterval, "must not be negative"))
	}

	return errors.Join(errs...)
}
