// Package metrics exposes Prometheus collectors for the poll engine and the
// session gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livepoll"

// PrometheusMetrics implements the engine and gateway metrics interfaces.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	pollsCreated      prometheus.Counter
	pollsEnded        *prometheus.CounterVec
	pollLifetime      prometheus.Histogram
	votes             *prometheus.CounterVec
	connections       *prometheus.GaugeVec
	admissionRejected *prometheus.CounterVec
	broadcasts        *prometheus.CounterVec
	broadcastDropped  prometheus.Counter
}

// NewPrometheusMetrics registers every collector on a private registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		pollsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_created_total",
			Help:      "Polls opened.",
		}),
		pollsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_ended_total",
			Help:      "Polls closed, by termination reason.",
		}, []string{"reason"}),
		pollLifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_lifetime_seconds",
			Help:      "Time between poll start and termination.",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 120},
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Vote submissions, by outcome.",
		}, []string{"outcome"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections, by role.",
		}, []string{"role"}),
		admissionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_admission_rejected_total",
			Help:      "Rejected WebSocket admissions, by reason.",
		}, []string{"reason"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Server events enqueued for fan-out, by event type.",
		}, []string{"event"}),
		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Server events dropped because the broadcast queue was full.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pollsCreated,
		m.pollsEnded,
		m.pollLifetime,
		m.votes,
		m.connections,
		m.admissionRejected,
		m.broadcasts,
		m.broadcastDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) RecordPollCreated() {
	m.pollsCreated.Inc()
}

func (m *PrometheusMetrics) RecordPollEnded(reason string, lifetime time.Duration) {
	m.pollsEnded.WithLabelValues(reason).Inc()
	if lifetime > 0 {
		m.pollLifetime.Observe(lifetime.Seconds())
	}
}

func (m *PrometheusMetrics) RecordVote(outcome string) {
	m.votes.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) ConnectionOpened(role string) {
	m.connections.WithLabelValues(role).Inc()
}

func (m *PrometheusMetrics) ConnectionClosed(role string) {
	m.connections.WithLabelValues(role).Dec()
}

func (m *PrometheusMetrics) AdmissionRejected(reason string) {
	m.admissionRejected.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) EventBroadcast(eventType string) {
	m.broadcasts.WithLabelValues(eventType).Inc()
}

func (m *PrometheusMetrics) BroadcastDropped() {
	m.broadcastDropped.Inc()
}
