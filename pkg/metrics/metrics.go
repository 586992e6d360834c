// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tenantry"

var (
	// OAuthRequestsTotal counts authorize, grant and token calls by outcome.
	OAuthRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oauth",
		Name:      "requests_total",
		Help:      "OAuth flow requests by step and outcome.",
	}, []string{"step", "outcome"})

	// TokensIssuedTotal counts signed token sets by grant type.
	TokensIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oauth",
		Name:      "tokens_issued_total",
		Help:      "Token sets issued by grant type.",
	}, []string{"grant_type"})

	KeyRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "keys",
		Name:      "rotations_total",
		Help:      "Signing keys created, including the first-boot key.",
	})

	// WebhookEventsTotal counts gateway webhook deliveries by event and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Payment gateway webhook deliveries by event type and outcome.",
	}, []string{"event", "outcome"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_processing_seconds",
		Help:      "Webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event"})

	// ActivationsTotal counts activation attempts: activated, noop, failed.
	ActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "activations_total",
		Help:      "Subscription activation attempts by outcome.",
	}, []string{"outcome"})

	ActivationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "activation_duration_seconds",
		Help:      "Duration of the activation database transaction.",
		Buckets:   prometheus.DefBuckets,
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "notifications_total",
		Help:      "Post-activation notifications by outcome.",
	}, []string{"outcome"})

	// JobsTotal counts background job runs by type and outcome:
	// completed, retried, failed, no_handler.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Background job runs by type and outcome.",
	}, []string{"type", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Background job handler duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})
)
