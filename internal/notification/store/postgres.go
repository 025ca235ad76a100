package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"castline/internal/notification/models"
	"castline/internal/platform/postgres"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
	txcontext "castline/pkg/platform/tx"
)

// PostgresStore keeps the notification queue in notification_jobs. Enqueue
// joins the caller's transaction when one is in ctx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `id, recipient, template_id, variables, status, attempts, next_attempt_at,
	last_error, created_at, updated_at`

func (s *PostgresStore) Enqueue(ctx context.Context, job *models.Job) error {
	vars, err := json.Marshal(job.Variables)
	if err != nil {
		return fmt.Errorf("marshal notification variables: %w", err)
	}
	_, err = txcontext.Use(ctx, s.db).ExecContext(ctx, `
		INSERT INTO notification_jobs (id, recipient, template_id, variables, status, attempts,
			next_attempt_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(job.ID),
		job.Recipient,
		job.TemplateID,
		string(vars),
		string(job.Status),
		job.Attempts,
		job.NextAttemptAt,
		job.LastError,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert notification job: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, jobID id.NotificationID) (*models.Job, error) {
	job, err := scanJob(txcontext.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM notification_jobs WHERE id = $1`, uuid.UUID(jobID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find notification job: %w", err)
	}
	return job, nil
}

// ClaimDue leases due jobs with FOR UPDATE SKIP LOCKED so several workers
// can poll the same table.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.Job, error) {
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, `
		UPDATE notification_jobs
		SET next_attempt_at = $2
		WHERE id IN (
			SELECT id FROM notification_jobs
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim notification jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification jobs: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, jobID id.NotificationID, attempts int, at time.Time) error {
	return s.exec(ctx, "mark notification delivered", `
		UPDATE notification_jobs SET status = 'delivered', attempts = $2, last_error = '', updated_at = $3
		WHERE id = $1
	`, uuid.UUID(jobID), attempts, at)
}

func (s *PostgresStore) Reschedule(ctx context.Context, jobID id.NotificationID, attempts int, next time.Time, lastErr string, at time.Time) error {
	return s.exec(ctx, "reschedule notification", `
		UPDATE notification_jobs SET attempts = $2, next_attempt_at = $3, last_error = $4, updated_at = $5
		WHERE id = $1
	`, uuid.UUID(jobID), attempts, next, lastErr, at)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, jobID id.NotificationID, attempts int, lastErr string, at time.Time) error {
	return s.exec(ctx, "mark notification failed", `
		UPDATE notification_jobs SET status = 'failed', attempts = $2, last_error = $3, updated_at = $4
		WHERE id = $1
	`, uuid.UUID(jobID), attempts, lastErr, at)
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job    models.Job
		rawID  uuid.UUID
		vars   []byte
		status string
	)
	err := row.Scan(
		&rawID,
		&job.Recipient,
		&job.TemplateID,
		&vars,
		&status,
		&job.Attempts,
		&job.NextAttemptAt,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.ID = id.NotificationID(rawID)
	job.Status = models.Status(status)
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &job.Variables); err != nil {
			return nil, fmt.Errorf("decode notification variables: %w", err)
		}
	}
	return &job, nil
}
