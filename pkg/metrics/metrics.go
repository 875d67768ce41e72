package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Access control metrics
	AccessChecks            *prometheus.CounterVec
	ShareTokensIssued       prometheus.Counter
	ShareTokenVerifications *prometheus.CounterVec
	Dispenses               *prometheus.CounterVec
	AuditWriteFailures      prometheus.Counter

	// Outbox related metrics
	OutboxEventsEnqueued    prometheus.Counter
	OutboxEnqueueFailures   prometheus.Counter
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Storage hygiene
	SessionsSwept prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AccessChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "consent_access_checks_total",
			Help:      "Access guard evaluations by result",
		}, []string{"result"}),
		ShareTokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "share_tokens_issued_total",
			Help:      "Total number of share tokens issued",
		}),
		ShareTokenVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "share_token_verifications_total",
			Help:      "Share token verification attempts by result",
		}, []string{"result"}),
		Dispenses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispense_attempts_total",
			Help:      "Dispense attempts by result",
		}, []string{"result"}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_write_failures_total",
			Help:      "Audit events that could not be persisted",
		}),

		// Outbox metrics
		OutboxEventsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_enqueued_total",
			Help:      "Total number of events written to the outbox",
		}),
		OutboxEnqueueFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_enqueue_failures_total",
			Help:      "Events that could not be written to the outbox",
		}),
		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verification_sessions_swept_total",
			Help:      "Expired verification sessions removed by the sweeper",
		}),

		// Database metrics
		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// NewNop returns metrics registered on a private registry, for tests and
// tools that never expose them.
func NewNop() *Metrics {
	return NewMetrics("nop", "", prometheus.NewRegistry())
}
