package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// Metrics holds the Prometheus collectors fed by lifecycle hooks and the
// HTTP middleware.
type Metrics struct {
	nodeVisits   *prometheus.CounterVec
	turnsTotal   *prometheus.CounterVec
	turnSteps    *prometheus.HistogramVec
	turnDuration *prometheus.HistogramVec
	handoffs     *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec
	flowReloads  prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors in a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		nodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbot_node_visits_total",
				Help: "Total number of node executions by flow and kind",
			},
			[]string{"flow_id", "kind"},
		),
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbot_turns_total",
				Help: "Total number of turns by flow and resulting session status",
			},
			[]string{"flow_id", "status"},
		),
		turnSteps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowbot_turn_steps",
				Help:    "Nodes executed per turn",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
			},
			[]string{"flow_id"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowbot_turn_duration_seconds",
				Help:    "Turn latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"flow_id"},
		),
		handoffs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbot_handoffs_total",
				Help: "Sessions handed off to a human queue",
			},
			[]string{"flow_id"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowbot_collaborator_duration_seconds",
				Help:    "Collaborator call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collaborator"},
		),
		callErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbot_collaborator_errors_total",
				Help: "Failed collaborator calls",
			},
			[]string{"collaborator"},
		),
		flowReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowbot_flow_reloads_total",
				Help: "Times the flow cache was invalidated by a file change",
			},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbot_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowbot_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.nodeVisits,
		m.turnsTotal,
		m.turnSteps,
		m.turnDuration,
		m.handoffs,
		m.callDuration,
		m.callErrors,
		m.flowReloads,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.FlowID, string(e.Kind)).Inc()
		},
		OnCallReturn: func(_ context.Context, e *domain.CallEvent) {
			m.callDuration.WithLabelValues(e.Collaborator).Observe(e.Duration.Seconds())
			if e.IsError {
				m.callErrors.WithLabelValues(e.Collaborator).Inc()
			}
		},
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) {
			m.turnsTotal.WithLabelValues(e.FlowID, string(e.Status)).Inc()
			m.turnSteps.WithLabelValues(e.FlowID).Observe(float64(e.Steps))
			m.turnDuration.WithLabelValues(e.FlowID).Observe(e.Duration.Seconds())
			if e.Handoff {
				m.handoffs.WithLabelValues(e.FlowID).Inc()
			}
		},
	}
}

// RecordReload counts a flow cache invalidation.
func (m *Metrics) RecordReload() {
	m.flowReloads.Inc()
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, took time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
