package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"castline/internal/notification/models"
	"castline/pkg/attrs"
	audit "castline/pkg/platform/audit"
	"castline/pkg/requestcontext"
)

// WorkerConfig bounds polling and retries.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts is the number of claims before a job is marked failed.
	MaxAttempts int
	// InitialBackoff and MaxBackoff shape the durable reschedule delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SendTimeout    time.Duration
	// QuickRetries are in-process retries within one claim, spaced by
	// QuickInterval, for blips that clear in milliseconds.
	QuickRetries  uint64
	QuickInterval time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.QuickInterval <= 0 {
		c.QuickInterval = 50 * time.Millisecond
	}
	return c
}

// Worker delivers due notification jobs.
type Worker struct {
	store    Store
	notifier Notifier
	cfg      WorkerConfig
	options
}

func NewWorker(store Store, notifier Notifier, cfg WorkerConfig, opts ...Option) *Worker {
	return &Worker{store: store, notifier: notifier, cfg: cfg.withDefaults(), options: newOptions(opts)}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "notification worker started", "poll_interval", w.cfg.PollInterval.String())
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "notification poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "notification worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessDue claims one batch of due jobs and attempts each once. It
// returns the number of jobs claimed.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	now := w.now()
	lease := w.cfg.SendTimeout*time.Duration(w.cfg.QuickRetries+1) + w.cfg.PollInterval
	jobs, err := w.store.ClaimDue(ctx, now, lease, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		w.deliver(ctx, job)
	}
	return len(jobs), nil
}

func (w *Worker) deliver(ctx context.Context, job *models.Job) {
	attempts := job.Attempts + 1
	err := w.send(ctx, job)
	now := w.now()

	if err == nil {
		if markErr := w.store.MarkDelivered(ctx, job.ID, attempts, now); markErr != nil {
			w.logger.ErrorContext(ctx, "failed to mark notification delivered",
				"notification_id", job.ID.String(), "error", markErr)
		}
		w.metrics.IncNotificationDelivered()
		return
	}

	if attempts >= w.cfg.MaxAttempts {
		if markErr := w.store.MarkFailed(ctx, job.ID, attempts, err.Error(), now); markErr != nil {
			w.logger.ErrorContext(ctx, "failed to mark notification failed",
				"notification_id", job.ID.String(), "error", markErr)
		}
		w.metrics.IncNotificationDeliveryFailure()
		w.logger.ErrorContext(ctx, "notification delivery failed permanently",
			"notification_id", job.ID.String(),
			"template_id", job.TemplateID,
			"attempts", attempts,
			"error", err,
		)
		w.logAudit(ctx, string(audit.EventNotificationFailed),
			"notification_id", job.ID.String(),
			"template_id", job.TemplateID,
			"reason", err.Error(),
		)
		return
	}

	next := now.Add(w.delayFor(attempts))
	if markErr := w.store.Reschedule(ctx, job.ID, attempts, next, err.Error(), now); markErr != nil {
		w.logger.ErrorContext(ctx, "failed to reschedule notification",
			"notification_id", job.ID.String(), "error", markErr)
	}
	w.metrics.IncNotificationRetry()
	w.logger.WarnContext(ctx, "notification delivery failed, rescheduled",
		"notification_id", job.ID.String(),
		"attempts", attempts,
		"next_attempt_at", next,
		"error", err,
	)
}

// send runs the notifier with a short in-process retry.
func (w *Worker) send(ctx context.Context, job *models.Job) error {
	quick := backoff.NewConstantBackOff(w.cfg.QuickInterval)
	policy := backoff.WithContext(backoff.WithMaxRetries(quick, w.cfg.QuickRetries), ctx)
	return backoff.Retry(func() error {
		sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
		defer cancel()
		return w.notifier.Notify(sendCtx, job.Recipient, job.TemplateID, job.Variables)
	}, policy)
}

// delayFor is the durable backoff before the next claim after attempts
// failures: InitialBackoff doubling up to MaxBackoff.
func (w *Worker) delayFor(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialBackoff
	b.MaxInterval = w.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (w *Worker) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	w.logger.InfoContext(ctx, event, args...)
	if w.auditPublisher == nil {
		return
	}
	if err := w.auditPublisher.Emit(ctx, audit.Event{
		Subject: attrs.ExtractString(attributes, "notification_id"),
		Action:  event,
		Reason:  attrs.ExtractString(attributes, "reason"),
		ActorID: "notification-worker",
	}); err != nil {
		w.logger.WarnContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}
