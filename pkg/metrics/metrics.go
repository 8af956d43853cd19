// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages accepted by the dispatcher.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Messages accepted, by type",
		},
		[]string{"type"},
	)

	// EventsTotal tracks inbound realtime events by action and outcome.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Inbound realtime events",
		},
		[]string{"action", "outcome"},
	)

	// FanoutDuration tracks end-to-end fan-out duration per send.
	FanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_fanout_duration_seconds",
			Help:    "Time from persistence to last participant delivery",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// DeliveriesTotal tracks per-connection pushes by result.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Per-connection delivery attempts",
		},
		[]string{"result"},
	)

	// TranslationDuration tracks translation gateway call duration.
	TranslationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "translation_duration_seconds",
			Help:    "Translation gateway call duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)

	// TranslationCacheHits tracks translations served from the message cache.
	TranslationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "translation_cache_hits_total",
			Help: "Translations served from the per-message cache",
		},
	)

	// WSConnectionsActive tracks active websocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active websocket connections",
		},
	)

	// StaleConnectionsTotal tracks connections deregistered after a failed push.
	StaleConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_stale_connections_total",
			Help: "Connections removed after a delivery failure signal",
		},
	)

	// PushFallbacksTotal tracks offline push notifications by result.
	PushFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_fallbacks_total",
			Help: "Offline push notifications",
		},
		[]string{"result"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTranslation records one translation gateway call.
func RecordTranslation(provider, status string, duration float64) {
	TranslationDuration.WithLabelValues(provider, status).Observe(duration)
}
