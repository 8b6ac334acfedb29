// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CalcomRequestDuration tracks Cal.com API request duration.
	CalcomRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calcom_request_duration_seconds",
			Help:    "Cal.com API request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "outcome"},
	)

	// CalcomRequestsTotal tracks total Cal.com API requests.
	CalcomRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calcom_requests_total",
			Help: "Total Cal.com API requests",
		},
		[]string{"endpoint", "outcome"},
	)

	// CalcomRetriesTotal tracks retried Cal.com API attempts.
	CalcomRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calcom_retries_total",
			Help: "Total retried Cal.com API attempts",
		},
		[]string{"endpoint"},
	)

	// AvailabilityCacheHits tracks availability cache hits.
	AvailabilityCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "availability_cache_hits_total",
			Help: "Availability cache hits",
		},
	)

	// AvailabilityCacheMisses tracks availability cache misses.
	AvailabilityCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "availability_cache_misses_total",
			Help: "Availability cache misses",
		},
	)

	// ConversationsTotal tracks booking conversations by final outcome.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_conversations_total",
			Help: "Booking conversations by outcome",
		},
		[]string{"outcome"},
	)

	// ConversationsActive tracks booking conversations in progress.
	ConversationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booking_conversations_active",
			Help: "Booking conversations currently in progress",
		},
	)

	// BookingsCreatedTotal tracks successfully created bookings.
	BookingsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Total bookings created via Cal.com",
		},
	)
)

// RecordCalcomRequest records metrics for a finished Cal.com API call.
func RecordCalcomRequest(endpoint, outcome string, duration float64) {
	CalcomRequestDuration.WithLabelValues(endpoint, outcome).Observe(duration)
	CalcomRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ConversationStarted marks the start of a booking conversation.
func ConversationStarted() {
	ConversationsActive.Inc()
}

// ConversationEnded marks the end of a booking conversation.
// Outcome is one of "completed", "cancelled", "expired", "failed".
func ConversationEnded(outcome string) {
	ConversationsActive.Dec()
	ConversationsTotal.WithLabelValues(outcome).Inc()
}
