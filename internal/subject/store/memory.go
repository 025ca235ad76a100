package store

import (
	"context"
	"sort"
	"sync"

	"castline/internal/subject/models"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
)

// InMemory is a process-local subject store. A single mutex makes each
// conditional update atomic, mirroring the PostgreSQL WHERE-guarded UPDATE.
type InMemory struct {
	mu       sync.RWMutex
	subjects map[id.SubjectID]*models.Subject
}

func NewInMemory() *InMemory {
	return &InMemory{subjects: make(map[id.SubjectID]*models.Subject)}
}

func (s *InMemory) Create(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subjects[subject.ID]; exists {
		return sentinel.ErrConflict
	}
	s.subjects[subject.ID] = cloneSubject(subject)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSubject(subject), nil
}

func (s *InMemory) List(_ context.Context, filter models.Filter) ([]*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Subject
	for _, subject := range s.subjects {
		if filter.Status != "" && subject.Status != filter.Status {
			continue
		}
		if filter.Type != "" && subject.Type != filter.Type {
			continue
		}
		out = append(out, cloneSubject(subject))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Decide moves a pending subject to d.Outcome. When the subject is no longer
// pending it returns the current row with changed=false.
func (s *InMemory) Decide(_ context.Context, subjectID id.SubjectID, d models.Decision) (*models.Subject, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}
	if subject.Status != models.ApprovalPending {
		return cloneSubject(subject), false, nil
	}
	actor, at := d.ActorID, d.At
	subject.Status = d.Outcome
	subject.ApprovedBy = &actor
	subject.ApprovedAt = &at
	subject.DecisionReason = d.Reason
	subject.UpdatedAt = d.At
	return cloneSubject(subject), true, nil
}

// Override flips a terminal subject to d.Outcome when it currently holds the
// opposite terminal state.
func (s *InMemory) Override(_ context.Context, subjectID id.SubjectID, d models.Decision) (*models.Subject, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}
	if subject.Status != d.Outcome.Opposite() {
		return cloneSubject(subject), false, nil
	}
	actor, at := d.ActorID, d.At
	subject.Status = d.Outcome
	subject.OverriddenBy = &actor
	subject.OverriddenAt = &at
	subject.OverrideReason = d.Reason
	subject.UpdatedAt = d.At
	return cloneSubject(subject), true, nil
}

func cloneSubject(s *models.Subject) *models.Subject {
	c := *s
	if s.PaymentID != nil {
		p := *s.PaymentID
		c.PaymentID = &p
	}
	if s.ApprovedBy != nil {
		a := *s.ApprovedBy
		c.ApprovedBy = &a
	}
	if s.ApprovedAt != nil {
		t := *s.ApprovedAt
		c.ApprovedAt = &t
	}
	if s.OverriddenBy != nil {
		a := *s.OverriddenBy
		c.OverriddenBy = &a
	}
	if s.OverriddenAt != nil {
		t := *s.OverriddenAt
		c.OverriddenAt = &t
	}
	return &c
}
