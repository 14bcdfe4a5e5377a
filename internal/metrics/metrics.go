// Package metrics exposes the runtime's prometheus collectors. Each
// process constructs one Metrics on its own registry so tests never fight
// over the global default.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	// SchedulerDrift observes per-pass timer drift in seconds (absolute).
	SchedulerDrift prometheus.Histogram

	// WatchdogPets counts lease pets issued by the main loop.
	WatchdogPets prometheus.Counter

	// WatchdogRecoveries counts expiry-triggered recoveries. At most one
	// per process lifetime.
	WatchdogRecoveries prometheus.Counter

	// ConsoleRxBytes and ConsoleTxBytes count transport traffic.
	ConsoleRxBytes prometheus.Counter
	ConsoleTxBytes prometheus.Counter

	// LoopPasses counts completed scheduling passes.
	LoopPasses prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SchedulerDrift: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hostmcu_scheduler_drift_seconds",
			Help:    "Absolute drift between expected and observed timer intervals.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		WatchdogPets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostmcu_watchdog_pets_total",
			Help: "Watchdog lease pets issued by the main loop.",
		}),
		WatchdogRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostmcu_watchdog_recoveries_total",
			Help: "Watchdog expiries that triggered recovery.",
		}),
		ConsoleRxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostmcu_console_rx_bytes_total",
			Help: "Bytes read from the console transport.",
		}),
		ConsoleTxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostmcu_console_tx_bytes_total",
			Help: "Bytes written to the console transport.",
		}),
		LoopPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostmcu_loop_passes_total",
			Help: "Completed main-loop scheduling passes.",
		}),
	}
	m.registry.MustRegister(
		m.SchedulerDrift, m.WatchdogPets, m.WatchdogRecoveries,
		m.ConsoleRxBytes, m.ConsoleTxBytes, m.LoopPasses,
	)
	return m
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the registry for tests.
func (m *Metrics) Gather() *prometheus.Registry { return m.registry }
