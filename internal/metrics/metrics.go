// Package metrics provides Prometheus metrics for the session service and the location pipeline.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FeedEvents counts change-feed events applied to the membership sets.
	FeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eta_feed_events_total",
			Help: "Total number of change-feed events applied, by feed role and event kind",
		},
		[]string{"role", "kind"},
	)

	// FeedErrors counts terminated change-feed subscriptions.
	FeedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eta_feed_errors_total",
			Help: "Total number of change-feed subscriptions that terminated with an error",
		},
		[]string{"role"},
	)

	// DecodeDrops counts session records dropped because they could not be decoded.
	DecodeDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eta_decode_drops_total",
			Help: "Total number of malformed session records dropped",
		},
	)

	// GateTransitions counts permission gate state changes.
	GateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eta_gate_transitions_total",
			Help: "Total number of permission gate transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// DispatchBatches counts dispatch batches by outcome of the authorization step.
	DispatchBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eta_dispatch_batches_total",
			Help: "Total number of location dispatch batches",
		},
		[]string{"result"},
	)

	// DispatchWrites counts per-session location writes by result.
	DispatchWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eta_dispatch_writes_total",
			Help: "Total number of per-session location writes",
		},
		[]string{"result"},
	)

	// DispatchWriteDuration tracks per-session write latency.
	DispatchWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eta_dispatch_write_duration_seconds",
			Help:    "Duration of per-session location writes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ActiveSessions tracks sessions held by the session store.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eta_active_sessions",
			Help: "Number of sessions currently held by the store",
		},
	)

	// ActiveFeeds tracks open websocket change-feed connections.
	ActiveFeeds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eta_active_feeds",
			Help: "Number of open websocket change-feed connections",
		},
	)

	// HTTPRequests counts API requests by route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eta_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "status"},
	)
)

// RecordFeedEvent increments the applied feed event counter.
func RecordFeedEvent(role, kind string) {
	FeedEvents.WithLabelValues(role, kind).Inc()
}

// RecordGateTransition records a permission gate state change.
func RecordGateTransition(fromState, toState string) {
	GateTransitions.WithLabelValues(fromState, toState).Inc()
}

// RecordBatch records the outcome of a dispatch batch ("ok", "unauthorized", "empty").
func RecordBatch(result string) {
	DispatchBatches.WithLabelValues(result).Inc()
}

// RecordWrite records a per-session write outcome and its latency.
func RecordWrite(ok bool, seconds float64) {
	result := "ok"
	if !ok {
		result = "error"
	}
	DispatchWrites.WithLabelValues(result).Inc()
	DispatchWriteDuration.Observe(seconds)
}

// RecordSessionCreated increments the active session gauge.
func RecordSessionCreated() {
	ActiveSessions.Inc()
}

// RecordSessionRemoved decrements the active session gauge.
func RecordSessionRemoved() {
	ActiveSessions.Dec()
}

// RecordRequest records a served API request.
func RecordRequest(route string, status int) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
