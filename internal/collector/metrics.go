package collector

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xtxerr/vmstats/internal/errors"
)

// Metrics are the self-monitoring metrics of the collector, plus the latest
// value of every statistic.
type Metrics struct {
	Ticks             prometheus.Counter
	SkippedTicks      prometheus.Counter
	TickDuration      prometheus.Histogram
	ProviderErrors    *prometheus.CounterVec
	PersistenceErrors prometheus.Counter
	Values            *prometheus.GaugeVec
}

// NewMetrics creates the collector metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmstats_collector_ticks_total",
			Help: "Total number of completed collection ticks",
		}),
		SkippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmstats_collector_skipped_ticks_total",
			Help: "Ticks skipped because the previous tick overran the interval",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vmstats_collector_tick_duration_seconds",
			Help:    "Duration of collection ticks",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vmstats_collector_provider_errors_total",
			Help: "Provider failures by metric and reason",
		}, []string{"metric", "reason"}),
		PersistenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmstats_collector_persistence_errors_total",
			Help: "Ticks whose samples could not be handed to the store",
		}),
		Values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vmstats_statistic_value",
			Help: "Latest raw value of each statistic in its display unit",
		}, []string{"metric", "unit"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Ticks,
			m.SkippedTicks,
			m.TickDuration,
			m.ProviderErrors,
			m.PersistenceErrors,
			m.Values,
		)
	}
	return m
}

// errorReason maps a provider error to a label value.
func errorReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, errors.ErrProviderBusy):
		return "busy"
	case errors.Is(err, errors.ErrProviderPanic):
		return "panic"
	case errors.Is(err, errors.ErrNonFinite):
		return "non_finite"
	case errors.Is(err, errors.ErrFactNotAvailable):
		return "unavailable"
	default:
		return "error"
	}
}
