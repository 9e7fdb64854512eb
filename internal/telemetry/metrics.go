// Package telemetry provides logging, tracing and metrics for the
// conversation engine.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contractbot"

// Metrics collects Prometheus metrics for the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal         *prometheus.CounterVec
	turnDuration       *prometheus.HistogramVec
	validationFailures *prometheus.CounterVec
	completionsTotal   *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	sweptSessionsTotal prometheus.Counter
	dictionaryReloads  *prometheus.CounterVec
	identifierLookups  *prometheus.CounterVec
}

// NewMetrics creates a Metrics collector on its own registry, including the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns processed, by flow and result kind.",
		}, []string{"flow", "kind"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time spent processing a turn.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"flow"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected field values, by field.",
		}, []string{"field"}),
		completionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion executor calls, by flow and status.",
		}, []string{"flow", "status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held by the registry.",
		}),
		sweptSessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_sessions_total",
			Help:      "Sessions removed by the idle sweep.",
		}),
		dictionaryReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dictionary_reloads_total",
			Help:      "Dictionary reload attempts, by status.",
		}, []string{"status"}),
		identifierLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifier_lookups_total",
			Help:      "Identifier existence checks, by cache result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turnsTotal,
		m.turnDuration,
		m.validationFailures,
		m.completionsTotal,
		m.activeSessions,
		m.sweptSessionsTotal,
		m.dictionaryReloads,
		m.identifierLookups,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTurn records a processed turn.
func (m *Metrics) RecordTurn(flow, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(flow, kind).Inc()
	m.turnDuration.WithLabelValues(flow).Observe(d.Seconds())
}

// RecordValidationFailure records a rejected value for field.
func (m *Metrics) RecordValidationFailure(field string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(field).Inc()
}

// RecordCompletion records a completion executor call.
func (m *Metrics) RecordCompletion(flow, status string) {
	if m == nil {
		return
	}
	m.completionsTotal.WithLabelValues(flow, status).Inc()
}

// SessionsActive sets the live session gauge.
func (m *Metrics) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// SessionsSwept adds to the swept session counter.
func (m *Metrics) SessionsSwept(n int) {
	if m == nil {
		return
	}
	m.sweptSessionsTotal.Add(float64(n))
}

// RecordDictionaryReload records a dictionary reload outcome.
func (m *Metrics) RecordDictionaryReload(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.dictionaryReloads.WithLabelValues(status).Inc()
}

// RecordIdentifierLookup records an identifier check: "hit", "miss" or "shared".
func (m *Metrics) RecordIdentifierLookup(result string) {
	if m == nil {
		return
	}
	m.identifierLookups.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler that serves metrics in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
