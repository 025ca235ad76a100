//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"castline/internal/subject/models"
	"castline/internal/subject/store"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
	"castline/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "subjects", "payments")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newSubject() *models.Subject {
	subject, err := models.NewSubject(id.NewSubjectID(), models.SubjectTypeGuide, id.AccountID(id.NewSubjectID()),
		"captain@example.com", "Captain", nil, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return subject
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	subject := s.newSubject()
	s.Require().NoError(s.store.Create(ctx, subject))

	found, err := s.store.FindByID(ctx, subject.ID)
	s.Require().NoError(err)
	s.Equal(subject.ID, found.ID)
	s.Equal(models.ApprovalPending, found.Status)
	s.Nil(found.ApprovedBy)
	s.Nil(found.PaymentID)

	s.ErrorIs(s.store.Create(ctx, subject), sentinel.ErrConflict)

	_, err = s.store.FindByID(ctx, id.NewSubjectID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentDecide verifies that of many racing decisions exactly one
// changes the row.
func (s *PostgresStoreSuite) TestConcurrentDecide() {
	ctx := context.Background()
	subject := s.newSubject()
	s.Require().NoError(s.store.Create(ctx, subject))

	const goroutines = 50
	var (
		wg      sync.WaitGroup
		changes atomic.Int32
		errs    atomic.Int32
	)
	for i := range goroutines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := models.ApprovalApproved
			if i%2 == 0 {
				outcome = models.ApprovalRejected
			}
			_, changed, err := s.store.Decide(ctx, subject.ID, models.Decision{
				Outcome: outcome,
				ActorID: id.AccountID(id.NewSubjectID()),
				At:      time.Now(),
			})
			if err != nil {
				errs.Add(1)
				return
			}
			if changed {
				changes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(0), errs.Load())
	s.Equal(int32(1), changes.Load())
}

func (s *PostgresStoreSuite) TestOverrideAndList() {
	ctx := context.Background()
	subject := s.newSubject()
	s.Require().NoError(s.store.Create(ctx, subject))
	_, changed, err := s.store.Decide(ctx, subject.ID, models.Decision{
		Outcome: models.ApprovalRejected,
		ActorID: id.AccountID(id.NewSubjectID()),
		Reason:  "incomplete licence",
		At:      time.Now(),
	})
	s.Require().NoError(err)
	s.Require().True(changed)

	updated, changed, err := s.store.Override(ctx, subject.ID, models.Decision{
		Outcome: models.ApprovalApproved,
		ActorID: id.AccountID(id.NewSubjectID()),
		Reason:  "licence supplied",
		At:      time.Now(),
	})
	s.Require().NoError(err)
	s.True(changed)
	s.Equal(models.ApprovalApproved, updated.Status)
	s.Equal("incomplete licence", updated.DecisionReason)
	s.Equal("licence supplied", updated.OverrideReason)
	s.NotNil(updated.OverriddenAt)

	approved, err := s.store.List(ctx, models.Filter{Status: models.ApprovalApproved})
	s.Require().NoError(err)
	s.Len(approved, 1)
	pending, err := s.store.List(ctx, models.Filter{Status: models.ApprovalPending, Type: models.SubjectTypeGuide})
	s.Require().NoError(err)
	s.Empty(pending)
}
