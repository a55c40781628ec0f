// Package metrics exports annealing progress as Prometheus metrics.
//
// Metrics live in a private registry so several runs can coexist in one
// process (tests) and nothing leaks into the global default registry. The
// CLI writes the registry to a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nvandessel/ising/internal/anneal"
)

const namespace = "ising"

// Metrics holds the collectors for one annealing run.
type Metrics struct {
	registry *prometheus.Registry

	// SweepsTotal counts sweeps by phase (equilibration, sampling).
	SweepsTotal *prometheus.CounterVec

	// AttemptsTotal and AcceptedTotal count single-site trials.
	AttemptsTotal prometheus.Counter
	AcceptedTotal prometheus.Counter

	// SweepDuration measures wall time per sweep.
	SweepDuration prometheus.Histogram

	// Temperature is the temperature currently being simulated.
	Temperature prometheus.Gauge

	// TemperaturesDone counts completed temperatures.
	TemperaturesDone prometheus.Counter

	// WriteFailuresTotal counts sink write failures.
	WriteFailuresTotal prometheus.Counter

	inTemperature bool
}

// New creates and registers all collectors in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Total Monte Carlo sweeps by phase",
		}, []string{"phase"}),
		AttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flip_attempts_total",
			Help:      "Total single-site flip attempts",
		}),
		AcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flip_accepted_total",
			Help:      "Total accepted single-site flips",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time per sweep in seconds",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature",
			Help:      "Temperature currently being simulated",
		}),
		TemperaturesDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temperatures_completed_total",
			Help:      "Temperatures whose realizations have all finished",
		}),
		WriteFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Output writes that failed and were skipped",
		}),
	}
	m.registry.MustRegister(
		m.SweepsTotal,
		m.AttemptsTotal,
		m.AcceptedTotal,
		m.SweepDuration,
		m.Temperature,
		m.TemperaturesDone,
		m.WriteFailuresTotal,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveSweep is an anneal.SweepHook.
func (m *Metrics) ObserveSweep(s anneal.SweepInfo) {
	m.SweepsTotal.WithLabelValues(s.Phase.Phase.String()).Inc()
	m.AttemptsTotal.Add(float64(s.Result.Attempts))
	m.AcceptedTotal.Add(float64(s.Result.Accepted))
	m.SweepDuration.Observe(s.Duration.Seconds())
}

// ObserveEvent is an anneal.Observer.
func (m *Metrics) ObserveEvent(e anneal.Event) {
	switch e.State {
	case anneal.StateForTemperature:
		// Entering a temperature completes the previous one.
		if m.inTemperature {
			m.TemperaturesDone.Inc()
		}
		m.inTemperature = true
		m.Temperature.Set(e.Temperature)
	case anneal.StateDone:
		if m.inTemperature {
			m.TemperaturesDone.Inc()
		}
		m.inTemperature = false
	}
}

// SetWriteFailures records the final write failure count of a run.
func (m *Metrics) SetWriteFailures(n int64) {
	m.WriteFailuresTotal.Add(float64(n))
}

// WriteTextfile writes the registry in Prometheus text format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
