package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"castline/internal/platform/postgres"
	"castline/internal/subject/models"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
	txcontext "castline/pkg/platform/tx"
)

// PostgresStore persists subjects in PostgreSQL. Approval transitions are
// single conditional UPDATEs so concurrent admins cannot both win.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subjectColumns = `id, subject_type, account_id, email, display_name, payment_id, status,
	approved_by, approved_at, decision_reason, overridden_by, overridden_at, override_reason,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, subject *models.Subject) error {
	query := `
		INSERT INTO subjects (id, subject_type, account_id, email, display_name, payment_id, status,
			decision_reason, override_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', '', $8, $9)
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(subject.ID),
		string(subject.Type),
		uuid.UUID(subject.AccountID),
		subject.Email,
		subject.DisplayName,
		nullablePaymentID(subject.PaymentID),
		string(subject.Status),
		subject.CreatedAt,
		subject.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE id = $1`
	subject, err := scanSubject(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(subjectID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return subject, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.Subject, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		clauses = append(clauses, fmt.Sprintf("subject_type = $%d", len(args)))
	}
	query := `SELECT ` + subjectColumns + ` FROM subjects`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []*models.Subject
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return out, nil
}

// Decide applies the first terminal decision. Only a pending row matches the
// WHERE clause; otherwise the current row is returned with changed=false.
func (s *PostgresStore) Decide(ctx context.Context, subjectID id.SubjectID, d models.Decision) (*models.Subject, bool, error) {
	query := `
		UPDATE subjects
		SET status = $2, approved_by = $3, approved_at = $4, decision_reason = $5, updated_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + subjectColumns
	subject, err := scanSubject(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(subjectID),
		string(d.Outcome),
		uuid.UUID(d.ActorID),
		d.At,
		d.Reason,
	))
	return s.resolveConditional(ctx, subjectID, subject, err, "decide subject")
}

// Override flips a terminal decision to its opposite.
func (s *PostgresStore) Override(ctx context.Context, subjectID id.SubjectID, d models.Decision) (*models.Subject, bool, error) {
	query := `
		UPDATE subjects
		SET status = $2, overridden_by = $3, overridden_at = $4, override_reason = $5, updated_at = $4
		WHERE id = $1 AND status = $6
		RETURNING ` + subjectColumns
	subject, err := scanSubject(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(subjectID),
		string(d.Outcome),
		uuid.UUID(d.ActorID),
		d.At,
		d.Reason,
		string(d.Outcome.Opposite()),
	))
	return s.resolveConditional(ctx, subjectID, subject, err, "override subject")
}

func (s *PostgresStore) resolveConditional(ctx context.Context, subjectID id.SubjectID, updated *models.Subject, err error, op string) (*models.Subject, bool, error) {
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	current, err := s.FindByID(ctx, subjectID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubject(row rowScanner) (*models.Subject, error) {
	var (
		subject                       models.Subject
		rawID, rawAccount             uuid.UUID
		paymentID, approvedBy, overBy uuid.NullUUID
		approvedAt, overriddenAt      sql.NullTime
		subjectType, status           string
	)
	err := row.Scan(
		&rawID,
		&subjectType,
		&rawAccount,
		&subject.Email,
		&subject.DisplayName,
		&paymentID,
		&status,
		&approvedBy,
		&approvedAt,
		&subject.DecisionReason,
		&overBy,
		&overriddenAt,
		&subject.OverrideReason,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	subject.ID = id.SubjectID(rawID)
	subject.AccountID = id.AccountID(rawAccount)
	subject.Type = models.SubjectType(subjectType)
	subject.Status = models.ApprovalStatus(status)
	if paymentID.Valid {
		p := id.PaymentID(paymentID.UUID)
		subject.PaymentID = &p
	}
	subject.ApprovedBy = nullableAccount(approvedBy)
	subject.ApprovedAt = nullableTime(approvedAt)
	subject.OverriddenBy = nullableAccount(overBy)
	subject.OverriddenAt = nullableTime(overriddenAt)
	return &subject, nil
}

func nullablePaymentID(p *id.PaymentID) uuid.NullUUID {
	if p == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*p), Valid: true}
}

func nullableAccount(u uuid.NullUUID) *id.AccountID {
	if !u.Valid {
		return nil
	}
	a := id.AccountID(u.UUID)
	return &a
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
