// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiptrack_transitions_total",
		Help: "Shipment status transitions committed, by resulting status",
	}, []string{"status"})

	TransitionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiptrack_transition_failures_total",
		Help: "Rejected or failed shipment operations, by operation and error code",
	}, []string{"operation", "code"})

	LocationUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shiptrack_location_updates_total",
		Help: "Agent location telemetry writes",
	})

	RetryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiptrack_retry_attempts_total",
		Help: "Retries of transient store failures, by operation",
	}, []string{"operation"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiptrack_notifications_total",
		Help: "Notifications created, by type",
	}, []string{"type"})

	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shiptrack_messages_total",
		Help: "Shipment chat messages stored",
	})

	RealtimeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiptrack_realtime_events_total",
		Help: "Realtime events published, by event type and source (local or remote)",
	}, []string{"type", "source"})

	StoreWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shiptrack_store_write_duration_seconds",
		Help:    "Latency of authoritative shipment writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shiptrack_websocket_clients",
		Help: "Connected websocket clients",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shiptrack_http_request_duration_seconds",
		Help:    "HTTP request latency, by route and status code",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})
)
