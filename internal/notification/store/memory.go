package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"castline/internal/notification/models"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
)

// InMemory is a process-local notification queue.
type InMemory struct {
	mu   sync.Mutex
	jobs map[id.NotificationID]*models.Job
}

func NewInMemory() *InMemory {
	return &InMemory{jobs: make(map[id.NotificationID]*models.Job)}
}

func (s *InMemory) Enqueue(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return sentinel.ErrConflict
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, jobID id.NotificationID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneJob(job), nil
}

// ListByRecipient returns every job addressed to recipient, oldest first.
func (s *InMemory) ListByRecipient(_ context.Context, recipient string) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, job := range s.jobs {
		if job.Recipient == recipient {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ClaimDue leases up to limit due jobs by pushing their next attempt past
// now+lease, so a concurrent claimer skips them.
func (s *InMemory) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.Job
	for _, job := range s.jobs {
		if job.IsDue(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*models.Job, 0, len(due))
	for _, job := range due {
		job.NextAttemptAt = now.Add(lease)
		out = append(out, cloneJob(job))
	}
	return out, nil
}

func (s *InMemory) MarkDelivered(_ context.Context, jobID id.NotificationID, attempts int, at time.Time) error {
	return s.update(jobID, func(job *models.Job) {
		job.Status = models.StatusDelivered
		job.Attempts = attempts
		job.LastError = ""
		job.UpdatedAt = at
	})
}

func (s *InMemory) Reschedule(_ context.Context, jobID id.NotificationID, attempts int, next time.Time, lastErr string, at time.Time) error {
	return s.update(jobID, func(job *models.Job) {
		job.Attempts = attempts
		job.NextAttemptAt = next
		job.LastError = lastErr
		job.UpdatedAt = at
	})
}

func (s *InMemory) MarkFailed(_ context.Context, jobID id.NotificationID, attempts int, lastErr string, at time.Time) error {
	return s.update(jobID, func(job *models.Job) {
		job.Status = models.StatusFailed
		job.Attempts = attempts
		job.LastError = lastErr
		job.UpdatedAt = at
	})
}

func (s *InMemory) update(jobID id.NotificationID, fn func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return sentinel.ErrNotFound
	}
	fn(job)
	return nil
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	c.Variables = maps.Clone(j.Variables)
	return &c
}
