// Package metrics holds the Prometheus collectors of the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizbot_events_total",
			Help: "Inbound conversation events by kind and outcome (accepted or ignored)",
		},
		[]string{"kind", "outcome"},
	)

	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizbot_recommendations_total",
			Help: "Completed quizzes by recommended catalog item",
		},
		[]string{"item"},
	)

	LeadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizbot_leads_total",
			Help: "Lead handoffs by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	CollaboratorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizbot_collaborator_failures_total",
			Help: "Failed best-effort calls to persistence or delivery collaborators",
		},
		[]string{"operation"},
	)

	DuplicateUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizbot_duplicate_updates_total",
			Help: "Chat platform updates dropped because they were already processed",
		},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizbot_delivery_duration_seconds",
			Help:    "Time spent delivering an outbound message, including pacing delay",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	PendingDeliveries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quizbot_pending_deliveries",
			Help: "Outbound messages queued but not yet delivered",
		},
	)
)
