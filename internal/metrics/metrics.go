// Package metrics provides the Prometheus collectors shared by the catalog,
// event bus, and actor runtime.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the runtime exposes.
type Metrics struct {
	EventsProduced   *prometheus.CounterVec
	EventsConsumed   *prometheus.CounterVec
	EventErrors      *prometheus.CounterVec
	EventDuration    *prometheus.HistogramVec

	BusDeliveries    *prometheus.CounterVec
	BusDeliveryDur   *prometheus.HistogramVec
	BusPendingAcks   prometheus.Gauge

	CircuitState     *prometheus.GaugeVec
	RateLimitDenied  *prometheus.CounterVec

	CatalogCacheHits *prometheus.CounterVec
}

// New creates collectors registered against prometheus.DefaultRegisterer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates collectors registered against a custom registerer,
// primarily so tests can avoid colliding with the global default registry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorsys_events_produced_total",
			Help: "Total events produced, labeled by event name and producing actor.",
		}, []string{"event", "actor"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorsys_events_consumed_total",
			Help: "Total events consumed, labeled by event name, consuming actor, and outcome.",
		}, []string{"event", "actor", "outcome"}),
		EventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorsys_event_errors_total",
			Help: "Total event dispatch errors, labeled by event name and error code.",
		}, []string{"event", "code"}),
		EventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actorsys_event_duration_seconds",
			Help:    "Time to process a single event dispatch.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"event", "pattern"}),

		BusDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorsys_bus_deliveries_total",
			Help: "Total bus deliveries, labeled by delivery pattern and outcome.",
		}, []string{"pattern", "outcome"}),
		BusDeliveryDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actorsys_bus_delivery_duration_seconds",
			Help:    "Bus delivery latency by pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pattern"}),
		BusPendingAcks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "actorsys_bus_pending_acks",
			Help: "Current number of unacked at-least-once tell deliveries.",
		}),

		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "actorsys_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) by breaker name.",
		}, []string{"breaker"}),
		RateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorsys_rate_limit_denied_total",
			Help: "Total requests denied by a rate limiter, labeled by limiter key.",
		}, []string{"limiter"}),

		CatalogCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorsys_catalog_cache_total",
			Help: "Catalog cache lookups, labeled by outcome (hit/miss/error).",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.EventsProduced, m.EventsConsumed, m.EventErrors, m.EventDuration,
		m.BusDeliveries, m.BusDeliveryDur, m.BusPendingAcks,
		m.CircuitState, m.RateLimitDenied, m.CatalogCacheHits,
	)
	return m
}

// ActorRecorder adapts Metrics to the actor package's MetricsRecorder
// interface, so an Actor's command/query outcomes land in the same
// collectors the catalog and bus report into, without the actor package
// importing prometheus directly.
type ActorRecorder struct {
	m *Metrics
}

// NewActorRecorder wraps m for use as an actor.Dependencies.Metrics.
func NewActorRecorder(m *Metrics) *ActorRecorder {
	return &ActorRecorder{m: m}
}

// RecordCommand implements actor.MetricsRecorder.
func (r *ActorRecorder) RecordCommand(actorName, cmdType string, duration time.Duration, success bool) {
	r.record(actorName, cmdType, "command", duration, success)
}

// RecordQuery implements actor.MetricsRecorder.
func (r *ActorRecorder) RecordQuery(actorName, queryType string, duration time.Duration, success bool) {
	r.record(actorName, queryType, "query", duration, success)
}

func (r *ActorRecorder) record(actorName, eventType, pattern string, duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
		r.m.EventErrors.WithLabelValues(eventType, "dispatch_failed").Inc()
	}
	r.m.EventsConsumed.WithLabelValues(eventType, actorName, outcome).Inc()
	r.m.EventDuration.WithLabelValues(eventType, pattern).Observe(duration.Seconds())
}
