// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks gateway HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querychat_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total gateway HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// QueryTurnsTotal counts query turns by outcome.
	QueryTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_query_turns_total",
			Help: "Query turns by outcome",
		},
		[]string{"outcome"},
	)

	// QueryDuration tracks round-trip time to the query-execution service.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querychat_query_duration_seconds",
			Help:    "Query execution round-trip duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 45},
		},
		[]string{"outcome"},
	)

	// QueriesRejectedTotal counts submissions rejected by the in-flight guard.
	QueriesRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "querychat_queries_rejected_total",
			Help: "Query submissions rejected while another query was in flight",
		},
	)

	// HydrationsTotal counts conversation list hydrations by outcome.
	HydrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_hydrations_total",
			Help: "Conversation list hydrations by outcome",
		},
		[]string{"outcome"},
	)

	// ConversationLoadsTotal counts message-history loads by outcome.
	ConversationLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_conversation_loads_total",
			Help: "Conversation message-history loads by outcome",
		},
		[]string{"outcome"},
	)

	// ConversationsCached tracks the number of locally known conversations.
	ConversationsCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "querychat_conversations_cached",
			Help: "Number of conversations in the local cache",
		},
	)

	// MessagesAppendedTotal counts messages appended to the local cache.
	MessagesAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_messages_appended_total",
			Help: "Messages appended to conversations",
		},
		[]string{"type", "source"},
	)

	// ViewSubscribersActive tracks active SSE view subscribers.
	ViewSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "querychat_view_subscribers_active",
			Help: "Number of active view event subscribers",
		},
	)

	// ViewEventsDroppedTotal counts view events dropped for slow subscribers.
	ViewEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "querychat_view_events_dropped_total",
			Help: "View events dropped because a subscriber buffer was full",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordQueryTurn records the outcome and duration of one query turn.
func RecordQueryTurn(outcome string, duration float64) {
	QueryTurnsTotal.WithLabelValues(outcome).Inc()
	QueryDuration.WithLabelValues(outcome).Observe(duration)
}

// IncrementViewSubscribers increments the active subscriber count.
func IncrementViewSubscribers() {
	ViewSubscribersActive.Inc()
}

// DecrementViewSubscribers decrements the active subscriber count.
func DecrementViewSubscribers() {
	ViewSubscribersActive.Dec()
}
