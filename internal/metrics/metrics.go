// Package metrics exposes Prometheus collectors for the daemon.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/matheus3301/relay/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Metrics holds every collector on its own registry. It observes the chat
// engine, the live hub and the notification dispatcher.
type Metrics struct {
	reg *prometheus.Registry

	CommandsTotal          *prometheus.CounterVec
	CommandDuration        *prometheus.HistogramVec
	SubscriptionsActive    prometheus.Gauge
	EvaluationsTotal       *prometheus.CounterVec
	EvaluationDuration     *prometheus.HistogramVec
	PushesTotal            *prometheus.CounterVec
	NotificationsQueued    *prometheus.CounterVec
	NotificationsDelivered *prometheus.CounterVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	RPCsTotal              *prometheus.CounterVec
	WebsocketConnections   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		CommandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed, by operation and outcome.",
		}, []string{"op", "outcome"}),
		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of command transactions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		SubscriptionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscriptions",
			Help:      "Open live query subscriptions.",
		}),
		EvaluationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_evaluations_total",
			Help:      "Live query evaluations, by query and outcome.",
		}, []string{"query", "outcome"}),
		EvaluationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_evaluation_duration_seconds",
			Help:      "Duration of live query evaluations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"query"}),
		PushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_pushes_total",
			Help:      "Snapshots pushed to subscribers.",
		}, []string{"query"}),
		NotificationsQueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_queued_total",
			Help:      "Notifications added to the outbox.",
		}, []string{"kind"}),
		NotificationsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_delivered_total",
			Help:      "Notification delivery attempts, by outcome.",
		}, []string{"kind", "outcome"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RPCsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC calls, by method and status code.",
		}, []string{"method", "code"}),
		WebsocketConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open WebSocket gateway connections.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind != "" {
		return strings.ToLower(string(kind))
	}
	return "error"
}

// queryName strips the arguments from a query signature.
func queryName(signature string) string {
	if i := strings.IndexByte(signature, '('); i >= 0 {
		return signature[:i]
	}
	return signature
}

func (m *Metrics) Command(op string, took time.Duration, err error) {
	m.CommandsTotal.WithLabelValues(op, outcome(err)).Inc()
	m.CommandDuration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) SubscriptionOpened() { m.SubscriptionsActive.Inc() }

func (m *Metrics) SubscriptionClosed() { m.SubscriptionsActive.Dec() }

func (m *Metrics) Evaluated(signature string, took time.Duration, err error) {
	q := queryName(signature)
	m.EvaluationsTotal.WithLabelValues(q, outcome(err)).Inc()
	m.EvaluationDuration.WithLabelValues(q).Observe(took.Seconds())
}

func (m *Metrics) Pushed(signature string) {
	m.PushesTotal.WithLabelValues(queryName(signature)).Inc()
}

func (m *Metrics) NotificationQueued(kind string) {
	m.NotificationsQueued.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationDelivered(kind, outcome string) {
	m.NotificationsDelivered.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RPC(method, code string) {
	m.RPCsTotal.WithLabelValues(method, code).Inc()
}
