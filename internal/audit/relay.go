// Package audit relays audit outbox rows to Kafka.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"castline/internal/platform/kafka"
	"castline/internal/platform/metrics"
	auditpg "castline/pkg/platform/audit/store/postgres"
	"castline/pkg/platform/tx"
)

// Outbox is the relay's view of the audit outbox table.
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]auditpg.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Producer publishes relayed rows.
type Producer interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// RelayConfig bounds one relay pass.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay moves unpublished outbox rows to Kafka. A batch is listed, produced
// and marked inside one transaction, so a failed produce leaves the rows
// for the next pass. Delivery is at-least-once; consumers dedupe on the
// payload id.
type Relay struct {
	outbox   Outbox
	producer Producer
	runner   tx.Runner
	cfg      RelayConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithTxRunner(runner tx.Runner) Option {
	return func(r *Relay) {
		r.runner = runner
	}
}

func NewRelay(outbox Outbox, producer Producer, cfg RelayConfig, opts ...Option) (*Relay, error) {
	if outbox == nil {
		return nil, fmt.Errorf("outbox is required")
	}
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	r := &Relay{
		outbox:   outbox,
		producer: producer,
		runner:   tx.NoopRunner{},
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "audit relay started", "poll_interval", r.cfg.PollInterval.String())
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.ErrorContext(ctx, "audit relay pass failed", "error", err)
				}
				break
			}
			// a full batch means more rows are likely waiting
			if n < r.cfg.BatchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "audit relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes at most one batch and returns how many rows it relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var relayed int
	err := r.runner.RunInTx(ctx, nil, func(ctx context.Context) error {
		entries, err := r.outbox.ListUnpublished(ctx, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		msgs := make([]kafka.Message, 0, len(entries))
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			msgs = append(msgs, kafka.Message{
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: map[string]string{
					"event_type": e.EventType,
					"outbox_id":  e.ID.String(),
				},
			})
			ids = append(ids, e.ID)
		}
		if err := r.producer.Publish(ctx, msgs...); err != nil {
			return err
		}
		if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		relayed = len(entries)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("relay audit outbox: %w", err)
	}
	if relayed > 0 {
		r.metrics.AddAuditRelayed(relayed)
		r.logger.DebugContext(ctx, "audit events relayed", "count", relayed)
	}
	return relayed, nil
}
