package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the onboarding engine.
// Methods are nil-safe so components can run without metrics in tests.
type Metrics struct {
	Transitions                  *prometheus.CounterVec
	NoopTransitions              *prometheus.CounterVec
	Webhooks                     *prometheus.CounterVec
	TokensIssued                 prometheus.Counter
	TokenRedemptions             *prometheus.CounterVec
	NotificationEnqueueFailures  prometheus.Counter
	NotificationDeliveries       prometheus.Counter
	NotificationDeliveryFailures prometheus.Counter
	NotificationRetries          prometheus.Counter
	AuditEventsRelayed           prometheus.Counter
	RateLimited                  *prometheus.CounterVec
	RateLimitFallbacks           prometheus.Counter
	RequestDuration              *prometheus.HistogramVec
}

// New registers all metrics with the default Prometheus registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "castline_state_transitions_total",
			Help: "State-changing transitions by machine and edge",
		}, []string{"machine", "from", "to"}),
		NoopTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "castline_noop_transitions_total",
			Help: "Replayed operations that resolved to an idempotent no-op",
		}, []string{"machine", "operation"}),
		Webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "castline_payment_webhooks_total",
			Help: "Payment gateway webhooks by outcome",
		}, []string{"outcome"}),
		TokensIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "castline_registration_tokens_issued_total",
			Help: "Registration tokens minted",
		}),
		TokenRedemptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "castline_registration_token_redemptions_total",
			Help: "Registration token redemption attempts by outcome",
		}, []string{"outcome"}),
		NotificationEnqueueFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "castline_notification_enqueue_failures_total",
			Help: "Notifications that could not be queued after a transition",
		}),
		NotificationDeliveries: f.NewCounter(prometheus.CounterOpts{
			Name: "castline_notification_deliveries_total",
			Help: "Notifications delivered",
		}),
		NotificationDeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "castline_notification_delivery_failures_total",
			Help: "Notifications abandoned after exhausting retries",
		}),
		NotificationRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "castline_notification_retries_total",
			Help: "Notification attempts rescheduled after a failure",
		}),
		AuditEventsRelayed: f.NewCounter(prometheus.CounterOpts{
			Name: "castline_audit_events_relayed_total",
			Help: "Audit outbox rows published to Kafka",
		}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "castline_rate_limited_total",
			Help: "Requests rejected with 429 by endpoint class",
		}, []string{"class"}),
		RateLimitFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "castline_rate_limit_fallbacks_total",
			Help: "Rate limit checks answered by the in-memory fallback",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "castline_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncTransition(machine, from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(machine, from, to).Inc()
	}
}

func (m *Metrics) IncNoop(machine, operation string) {
	if m != nil {
		m.NoopTransitions.WithLabelValues(machine, operation).Inc()
	}
}

func (m *Metrics) IncWebhook(outcome string) {
	if m != nil {
		m.Webhooks.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncTokenIssued() {
	if m != nil {
		m.TokensIssued.Inc()
	}
}

func (m *Metrics) IncTokenRedemption(outcome string) {
	if m != nil {
		m.TokenRedemptions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncNotificationEnqueueFailure() {
	if m != nil {
		m.NotificationEnqueueFailures.Inc()
	}
}

func (m *Metrics) IncNotificationDelivered() {
	if m != nil {
		m.NotificationDeliveries.Inc()
	}
}

func (m *Metrics) IncNotificationDeliveryFailure() {
	if m != nil {
		m.NotificationDeliveryFailures.Inc()
	}
}

func (m *Metrics) IncNotificationRetry() {
	if m != nil {
		m.NotificationRetries.Inc()
	}
}

func (m *Metrics) AddAuditRelayed(n int) {
	if m != nil {
		m.AuditEventsRelayed.Add(float64(n))
	}
}

func (m *Metrics) IncRateLimited(class string) {
	if m != nil {
		m.RateLimited.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) IncRateLimitFallback() {
	if m != nil {
		m.RateLimitFallbacks.Inc()
	}
}

// ObserveRequest records the duration of an HTTP request.
// Call with time.Now() taken at the start of the request.
func (m *Metrics) ObserveRequest(method, route string, status int, start time.Time) {
	if m != nil {
		m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	}
}
