package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CheckoutsStarted   prometheus.Counter
	CheckoutsCompleted prometheus.Counter
	StepTransitions    *prometheus.CounterVec

	IdentityChecks  *prometheus.CounterVec
	RateLimitEvents *prometheus.CounterVec

	ProtocolsIssued prometheus.Counter

	PaymentsCreated prometheus.Counter
	PaymentPolls    prometheus.Counter
	PaymentOutcomes *prometheus.CounterVec

	RequestLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CheckoutsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certflow_checkouts_started_total",
			Help: "Total number of checkout sessions started",
		}),
		CheckoutsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certflow_checkouts_completed_total",
			Help: "Total number of checkout sessions reaching the upload handoff",
		}),
		StepTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_step_transitions_total",
			Help: "Step transitions by target step",
		}, []string{"to_step"}),
		IdentityChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_identity_checks_total",
			Help: "Identity verification calls by kind and outcome",
		}, []string{"kind", "outcome"}),
		RateLimitEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_ratelimit_events_total",
			Help: "Identity gate rate limit events by kind (throttled, blocked)",
		}, []string{"kind"}),
		ProtocolsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certflow_protocols_issued_total",
			Help: "Total number of service protocols issued",
		}),
		PaymentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certflow_payments_created_total",
			Help: "Total number of payment charges created",
		}),
		PaymentPolls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certflow_payment_polls_total",
			Help: "Total number of payment status polls performed",
		}),
		PaymentOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_payment_outcomes_total",
			Help: "Terminal payment session outcomes",
		}, []string{"outcome"}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certflow_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
