package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "castline/pkg/domain"
	txcontext "castline/pkg/platform/tx"
)

// PostgresStore keeps the ledger in the webhook_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Seen(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := txcontext.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE gateway_event_id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Record(ctx context.Context, eventID string, paymentID id.PaymentID, at time.Time) (bool, error) {
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, `
		INSERT INTO webhook_events (gateway_event_id, payment_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (gateway_event_id) DO NOTHING
	`, eventID, uuid.UUID(paymentID), at)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return rows == 1, nil
}
