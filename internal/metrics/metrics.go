// Package metrics holds the Prometheus collectors of the admission service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrations_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	slotOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slot_operations_total",
			Help: "Capacity ledger operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	settlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_duration_seconds",
			Help:    "Duration of simulated settlement",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"method"},
	)

	eventTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_transitions_total",
			Help: "Event status transitions by target status",
		},
		[]string{"to"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Organizer notification dispatches by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// TrackRegistration counts a registration attempt.
func TrackRegistration(outcome string) {
	registrations.WithLabelValues(outcome).Inc()
}

// TrackSlot counts a ledger operation.
func TrackSlot(operation, outcome string) {
	slotOperations.WithLabelValues(operation, outcome).Inc()
}

// TrackSettlement counts a settlement attempt and records its duration.
func TrackSettlement(method, outcome string, d time.Duration) {
	settlements.WithLabelValues(method, outcome).Inc()
	settlementDuration.WithLabelValues(method).Observe(d.Seconds())
}

// TrackEventTransition counts an event moving to status to.
func TrackEventTransition(to string) {
	eventTransitions.WithLabelValues(to).Inc()
}

// TrackNotification counts a notification dispatch.
func TrackNotification(kind string, dispatched bool) {
	outcome := "failed"
	if dispatched {
		outcome = "dispatched"
	}
	notifications.WithLabelValues(kind, outcome).Inc()
}
