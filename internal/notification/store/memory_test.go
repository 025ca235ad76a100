package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"castline/internal/notification/models"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
)

type NotificationStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestNotificationStoreSuite(t *testing.T) {
	suite.Run(t, new(NotificationStoreSuite))
}

func (s *NotificationStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Now()
}

func (s *NotificationStoreSuite) enqueue(recipient string, at time.Time) *models.Job {
	job, err := models.NewJob(id.NewNotificationID(), recipient, models.TemplateSubjectApproved, nil, at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Enqueue(s.ctx, job))
	return job
}

func (s *NotificationStoreSuite) TestClaimDue() {
	due := s.enqueue("a@example.com", s.now.Add(-time.Minute))
	s.enqueue("b@example.com", s.now.Add(time.Hour))

	claimed, err := s.store.ClaimDue(s.ctx, s.now, time.Minute, 10)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(due.ID, claimed[0].ID)

	again, err := s.store.ClaimDue(s.ctx, s.now, time.Minute, 10)
	s.Require().NoError(err)
	s.Empty(again, "a leased job is not claimed twice")

	later, err := s.store.ClaimDue(s.ctx, s.now.Add(2*time.Minute), time.Minute, 10)
	s.Require().NoError(err)
	s.Len(later, 1, "an expired lease makes the job due again")
}

func (s *NotificationStoreSuite) TestLifecycle() {
	job := s.enqueue("c@example.com", s.now)

	s.Require().NoError(s.store.Reschedule(s.ctx, job.ID, 1, s.now.Add(time.Minute), "smtp down", s.now))
	found, err := s.store.FindByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(1, found.Attempts)
	s.Equal("smtp down", found.LastError)
	s.Equal(models.StatusPending, found.Status)

	s.Require().NoError(s.store.MarkDelivered(s.ctx, job.ID, 2, s.now))
	found, err = s.store.FindByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, found.Status)
	s.Empty(found.LastError)

	s.ErrorIs(s.store.MarkFailed(s.ctx, id.NewNotificationID(), 1, "x", s.now), sentinel.ErrNotFound)
}
