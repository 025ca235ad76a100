package models

import (
	"maps"
	"strings"
	"time"

	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
)

// Template identifiers understood by the delivery side.
const (
	TemplateSubjectApproved   = "subject_approved"
	TemplateSubjectRejected   = "subject_rejected"
	TemplateRegistrationToken = "registration_token"
)

// Status is the delivery state of a notification job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Job is one queued notification. Jobs are delivered at least once; the
// worker retries until MaxAttempts and then marks the job failed.
type Job struct {
	ID            id.NotificationID
	Recipient     string
	TemplateID    string
	Variables     map[string]string
	Status        Status
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewJob(jobID id.NotificationID, recipient, templateID string, vars map[string]string, now time.Time) (*Job, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "notification recipient is required")
	}
	if templateID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "notification template is required")
	}
	return &Job{
		ID:            jobID,
		Recipient:     recipient,
		TemplateID:    templateID,
		Variables:     maps.Clone(vars),
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsDue reports whether the worker should attempt the job at now.
func (j *Job) IsDue(now time.Time) bool {
	return j.Status == StatusPending && !j.NextAttemptAt.After(now)
}
