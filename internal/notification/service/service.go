// Package service queues notifications and delivers them in the background.
//
// Transitions call Dispatcher.Enqueue after their state change commits; the
// Worker polls due jobs, delivers them through a Notifier and retries with
// exponential backoff until the attempt budget is spent.
package service

import (
	"context"
	"log/slog"
	"time"

	"castline/internal/notification/models"
	"castline/internal/platform/metrics"
	id "castline/pkg/domain"
	audit "castline/pkg/platform/audit"
)

type Store interface {
	Enqueue(ctx context.Context, job *models.Job) error
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.Job, error)
	MarkDelivered(ctx context.Context, jobID id.NotificationID, attempts int, at time.Time) error
	Reschedule(ctx context.Context, jobID id.NotificationID, attempts int, next time.Time, lastErr string, at time.Time) error
	MarkFailed(ctx context.Context, jobID id.NotificationID, attempts int, lastErr string, at time.Time) error
}

// Notifier delivers one rendered notification. A nil error means delivered.
type Notifier interface {
	Notify(ctx context.Context, recipient, templateID string, vars map[string]string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type options struct {
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	now            func() time.Time
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(o *options) {
		o.auditPublisher = publisher
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dispatcher turns notification requests into durable jobs.
type Dispatcher struct {
	store Store
	options
}

func NewDispatcher(store Store, opts ...Option) *Dispatcher {
	return &Dispatcher{store: store, options: newOptions(opts)}
}

// Enqueue stores a job for immediate delivery. It joins the caller's
// transaction when one is present in ctx.
func (d *Dispatcher) Enqueue(ctx context.Context, recipient, templateID string, vars map[string]string) error {
	job, err := models.NewJob(id.NewNotificationID(), recipient, templateID, vars, d.now())
	if err != nil {
		return err
	}
	if err := d.store.Enqueue(ctx, job); err != nil {
		return err
	}
	d.logger.DebugContext(ctx, "notification enqueued",
		"notification_id", job.ID.String(),
		"template_id", templateID,
	)
	return nil
}
