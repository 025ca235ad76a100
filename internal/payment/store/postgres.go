package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"castline/internal/payment/models"
	"castline/internal/platform/postgres"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
	txcontext "castline/pkg/platform/tx"
)

// PostgresStore persists payments in PostgreSQL. Every status and token
// change is one guarded UPDATE ... RETURNING; a miss is reported as
// changed=false together with the current row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `id, plan_type, amount, currency, payer_email, payer_name, status, status_reason,
	status_event, gateway_session_id, gateway_customer_id, registration_token, token_issued_at, expires_at,
	registration_completed, account_id, redeemed_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (id, plan_type, amount, currency, payer_email, payer_name, status,
			status_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(p.ID),
		string(p.PlanType),
		p.Amount,
		p.Currency,
		p.PayerEmail,
		p.PayerName,
		string(p.Status),
		p.StatusReason,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	return s.findOne(ctx, "find payment", `id = $1`, uuid.UUID(paymentID))
}

func (s *PostgresStore) FindByGatewaySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	if sessionID == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.findOne(ctx, "find payment by session", `gateway_session_id = $1`, sessionID)
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.Payment, error) {
	if token == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.findOne(ctx, "find payment by token", `registration_token = $1`, token)
}

func (s *PostgresStore) findOne(ctx context.Context, op, where string, arg any) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where
	p, err := scanPayment(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, account id.AccountID) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE account_id = $1 ORDER BY created_at ASC`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, uuid.UUID(account))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Transition(ctx context.Context, paymentID id.PaymentID, t models.Transition, u models.TransitionUpdate) (*models.Payment, bool, error) {
	var sessionID, customerID sql.NullString
	if u.Checkout != nil {
		sessionID = sql.NullString{String: u.Checkout.SessionID, Valid: true}
		customerID = sql.NullString{String: u.Checkout.CustomerID, Valid: u.Checkout.CustomerID != ""}
	}
	var amount any
	if u.Amount != nil {
		amount = *u.Amount
	}
	query := `
		UPDATE payments
		SET status = $2,
			status_reason = CASE WHEN $3 = '' THEN status_reason ELSE $3 END,
			status_event = CASE WHEN $9 = '' THEN status_event ELSE $9 END,
			amount = COALESCE($4::numeric, amount),
			gateway_session_id = COALESCE($5, gateway_session_id),
			gateway_customer_id = COALESCE($6, gateway_customer_id),
			updated_at = $7
		WHERE id = $1 AND status = ANY($8)
		RETURNING ` + paymentColumns
	p, err := scanPayment(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(paymentID),
		string(t.Target),
		u.Reason,
		amount,
		sessionID,
		customerID,
		u.At,
		pq.Array(statusStrings(t.Sources)),
		string(t.Event),
	))
	return s.resolve("transition payment", err, p, func() (*models.Payment, error) {
		return s.FindByID(ctx, paymentID)
	})
}

func (s *PostgresStore) IssueToken(ctx context.Context, paymentID id.PaymentID, g models.TokenGrant) (*models.Payment, bool, error) {
	query := `
		UPDATE payments
		SET registration_token = $2, token_issued_at = $3, expires_at = $4, updated_at = $3
		WHERE id = $1 AND registration_token IS NULL AND status = ANY($5)
		RETURNING ` + paymentColumns
	p, err := scanPayment(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(paymentID),
		g.Token,
		g.IssuedAt,
		nullTime(g.ExpiresAt),
		pq.Array(statusStrings(models.TokenEligibleStatuses)),
	))
	if err != nil && postgres.IsUniqueViolation(err) {
		return nil, false, sentinel.ErrConflict
	}
	return s.resolve("issue token", err, p, func() (*models.Payment, error) {
		return s.FindByID(ctx, paymentID)
	})
}

func (s *PostgresStore) RedeemToken(ctx context.Context, r models.Redemption) (*models.Payment, bool, error) {
	query := `
		UPDATE payments
		SET registration_completed = TRUE, account_id = $2, redeemed_at = $3, updated_at = $3
		WHERE registration_token = $1
			AND registration_completed = FALSE
			AND (expires_at IS NULL OR expires_at > $3)
			AND status = ANY($4)
		RETURNING ` + paymentColumns
	p, err := scanPayment(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query,
		r.Token,
		uuid.UUID(r.AccountID),
		r.At,
		pq.Array(statusStrings(models.TokenEligibleStatuses)),
	))
	return s.resolve("redeem token", err, p, func() (*models.Payment, error) {
		return s.FindByToken(ctx, r.Token)
	})
}

// resolve turns a RETURNING scan into (row, changed). A miss reloads the
// current row so callers can classify the outcome.
func (s *PostgresStore) resolve(op string, err error, updated *models.Payment, reload func() (*models.Payment, error)) (*models.Payment, bool, error) {
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	current, err := reload()
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p                                    models.Payment
		rawID                                uuid.UUID
		planType, status, statusEvent        string
		sessionID, customerID, token         sql.NullString
		tokenIssuedAt, expiresAt, redeemedAt sql.NullTime
		account                              uuid.NullUUID
	)
	err := row.Scan(
		&rawID,
		&planType,
		&p.Amount,
		&p.Currency,
		&p.PayerEmail,
		&p.PayerName,
		&status,
		&p.StatusReason,
		&statusEvent,
		&sessionID,
		&customerID,
		&token,
		&tokenIssuedAt,
		&expiresAt,
		&p.RegistrationCompleted,
		&account,
		&redeemedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ID = id.PaymentID(rawID)
	p.PlanType = models.PlanType(planType)
	p.Status = models.Status(status)
	p.StatusEvent = models.EventKind(statusEvent)
	p.GatewaySessionID = sessionID.String
	p.GatewayCustomerID = customerID.String
	p.RegistrationToken = token.String
	p.TokenIssuedAt = timePtr(tokenIssuedAt)
	p.ExpiresAt = timePtr(expiresAt)
	p.RedeemedAt = timePtr(redeemedAt)
	if account.Valid {
		a := id.AccountID(account.UUID)
		p.AccountID = &a
	}
	return &p, nil
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
