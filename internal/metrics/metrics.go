package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdesk_transitions_total",
			Help: "Committed request status transitions",
		},
		[]string{"from", "to"},
	)

	TransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdesk_transitions_rejected_total",
			Help: "Transition attempts refused by validation or authorization",
		},
		[]string{"reason"},
	)

	DispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdesk_dispatch_failures_total",
			Help: "Transition handlers that failed after commit",
		},
		[]string{"handler"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdesk_notifications_created_total",
			Help: "Notifications appended per type",
		},
		[]string{"type"},
	)

	TrackingSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetdesk_tracking_sessions_active",
			Help: "Tracking sessions currently active",
		},
	)

	TrackingSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetdesk_tracking_subscribers",
			Help: "Open tracking subscriptions",
		},
	)

	TrackingSamples = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetdesk_tracking_samples_total",
			Help: "Position samples appended to tracking sessions",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdesk_messages_posted_total",
			Help: "Messages posted per sender side",
		},
		[]string{"sender"},
	)
)
