package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"castline/internal/audit"
	notificationsvc "castline/internal/notification/service"
	notificationstore "castline/internal/notification/store"
	onboarding "castline/internal/onboarding/service"
	paymentsvc "castline/internal/payment/service"
	paymentstore "castline/internal/payment/store"
	ledgerstore "castline/internal/payment/webhook/store"
	"castline/internal/platform/config"
	"castline/internal/platform/kafka"
	"castline/internal/platform/metrics"
	"castline/internal/platform/postgres"
	redisclient "castline/internal/platform/redis"
	registration "castline/internal/registration/service"
	subjectsvc "castline/internal/subject/service"
	subjectstore "castline/internal/subject/store"
	pkgaudit "castline/pkg/platform/audit"
	auditmemory "castline/pkg/platform/audit/store/memory"
	auditpg "castline/pkg/platform/audit/store/postgres"
	"castline/pkg/platform/tx"
)

// paymentStore is what the payment service and the token broker share.
type paymentStore interface {
	paymentsvc.Store
	registration.PaymentStore
}

// infra holds the backing stores, PostgreSQL when DATABASE_URL is set and
// in-memory otherwise.
type infra struct {
	db       *sql.DB
	redis    *redisclient.Client
	producer *kafka.Producer
	relay    *audit.Relay
	runner   tx.Runner

	subjects      subjectsvc.Store
	payments      paymentStore
	notifications notificationsvc.Store
	ledger        onboarding.WebhookLedger
	auditStore    pkgaudit.Store
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (*infra, error) {
	in := &infra{}
	if cfg.Database.URL == "" {
		log.Warn("no DATABASE_URL configured; using in-memory stores")
		in.runner = tx.NoopRunner{}
		in.subjects = subjectstore.NewInMemory()
		in.payments = paymentstore.NewInMemory()
		in.notifications = notificationstore.NewInMemory()
		in.ledger = ledgerstore.NewInMemory()
		in.auditStore = auditmemory.NewInMemoryStore()
	} else {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		in.db = db
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				in.Close()
				return nil, err
			}
		}
		in.runner = tx.NewSQLRunner(db)
		in.subjects = subjectstore.NewPostgres(db)
		in.payments = paymentstore.NewPostgres(db)
		in.notifications = notificationstore.NewPostgres(db)
		in.ledger = ledgerstore.NewPostgres(db)
		in.auditStore = auditpg.New(db)
	}

	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	if client != nil {
		in.redis = client
		in.ledger = ledgerstore.NewRedis(client.Client, cfg.Redis.WebhookTTL)
		log.Info("webhook ledger backed by redis", "ttl", cfg.Redis.WebhookTTL.String())
	}

	if err := in.openRelay(ctx, cfg, log, m); err != nil {
		in.Close()
		return nil, err
	}
	return in, nil
}

func (in *infra) openRelay(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	if in.db == nil {
		log.Warn("kafka brokers configured without a database; audit relay disabled")
		return nil
	}
	producer, err := kafka.NewProducer(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	in.producer = producer
	relay, err := audit.NewRelay(auditpg.New(in.db), producer, audit.RelayConfig{
		PollInterval: cfg.Kafka.PollInterval,
		BatchSize:    cfg.Kafka.BatchSize,
	},
		audit.WithLogger(log),
		audit.WithMetrics(m),
		audit.WithTxRunner(in.runner),
	)
	if err != nil {
		return err
	}
	in.relay = relay
	return nil
}

// Health pings every configured backend.
func (in *infra) Health(ctx context.Context) error {
	var errs []error
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (in *infra) Close() {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
