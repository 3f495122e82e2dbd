// Package telemetry exposes the daemon's Prometheus collectors.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters updated by the engine, the push adapter and
// the REST client. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	events           *prometheus.CounterVec
	eventFailures    *prometheus.CounterVec
	resyncs          *prometheus.CounterVec
	backfills        *prometheus.CounterVec
	discardedHistory prometheus.Counter
	reconnects       prometheus.Counter
	restCalls        *prometheus.CounterVec
	busDrops         prometheus.Counter
	unread           prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "push_events_total",
			Help:      "Push events applied by the engine.",
		}, []string{"event"}),
		eventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "push_event_failures_total",
			Help:      "Push events whose handler failed.",
		}, []string{"event"}),
		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "resyncs_total",
			Help:      "Full snapshot fetches by reason.",
		}, []string{"reason", "result"}),
		backfills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "channel_backfills_total",
			Help:      "Unknown-channel detail fetches by outcome.",
		}, []string{"result"}),
		discardedHistory: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "discarded_history_total",
			Help:      "History pages dropped because the channel was no longer active.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "push_reconnects_total",
			Help:      "Push connections established after the first.",
		}),
		restCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "rest_requests_total",
			Help:      "REST calls by method and status code.",
		}, []string{"method", "code"}),
		busDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "bus_dropped_total",
			Help:      "Bus events dropped on full subscriber buffers.",
		}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle",
			Name:      "unread_messages",
			Help:      "Sum of unread counters.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.events, m.eventFailures, m.resyncs, m.backfills,
		m.discardedHistory, m.reconnects, m.restCalls, m.busDrops, m.unread,
	)
	return m
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Event(event string) {
	if m != nil {
		m.events.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) EventFailed(event string) {
	if m != nil {
		m.eventFailures.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Resync(reason string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.resyncs.WithLabelValues(reason, result).Inc()
}

func (m *Metrics) Backfill(result string) {
	if m != nil {
		m.backfills.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) HistoryDiscarded() {
	if m != nil {
		m.discardedHistory.Inc()
	}
}

func (m *Metrics) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) RESTCall(method, code string) {
	if m != nil {
		m.restCalls.WithLabelValues(method, code).Inc()
	}
}

func (m *Metrics) BusDropped() {
	if m != nil {
		m.busDrops.Inc()
	}
}

func (m *Metrics) SetUnread(n int) {
	if m != nil {
		m.unread.Set(float64(n))
	}
}
