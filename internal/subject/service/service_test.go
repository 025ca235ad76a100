package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Notifications,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	notifymodels "castline/internal/notification/models"
	"castline/internal/platform/metrics"
	"castline/internal/subject/models"
	"castline/internal/subject/service/mocks"
	"castline/internal/subject/store"
	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
	audit "castline/pkg/platform/audit"
)

// =============================================================================
// Approval Service Test Suite
// =============================================================================
// Decisions run against the in-memory store; notifications and audit are
// mocked so the exact number of enqueues per decision is asserted.

type ServiceSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	notifications *mocks.MockNotifications
	auditor       *mocks.MockAuditPublisher
	store         *store.InMemory
	metrics       *metrics.Metrics
	service       *Service
	ctx           context.Context
	admin         id.AccountID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.notifications = mocks.NewMockNotifications(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.store = store.NewInMemory()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.ctx = context.Background()
	s.admin = id.AccountID(uuid.New())

	var err error
	s.service, err = New(s.store, s.notifications,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.auditor),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) submit() *models.Subject {
	subject, err := models.NewSubject(id.NewSubjectID(), models.SubjectTypeSupplier, id.AccountID(uuid.New()),
		"supplier@example.com", "Fly Shop", nil, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.service.Submit(s.ctx, subject))
	return subject
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.notifications)
		s.ErrorContains(err, "subject store is required")
	})

	s.Run("nil notifications returns error", func() {
		_, err := New(s.store, nil)
		s.ErrorContains(err, "notifications is required")
	})
}

func (s *ServiceSuite) TestIdempotentApproval() {
	subject := s.submit()
	s.notifications.EXPECT().
		Enqueue(gomock.Any(), "supplier@example.com", notifymodels.TemplateSubjectApproved, gomock.Any()).
		Return(nil).
		Times(1)

	first, err := s.service.Decide(s.ctx, subject.ID, models.ApprovalApproved, s.admin, "looks good")
	s.Require().NoError(err)
	s.True(first.Changed)

	second, err := s.service.Decide(s.ctx, subject.ID, models.ApprovalApproved, id.AccountID(uuid.New()), "again")
	s.Require().NoError(err)
	s.False(second.Changed)
	s.Equal(models.ApprovalApproved, second.Subject.Status)
	s.Equal(s.admin, *second.Subject.ApprovedBy, "decider is recorded once")
	s.Equal("looks good", second.Subject.DecisionReason)

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.NoopTransitions.WithLabelValues(machine, "decide")))
}

func (s *ServiceSuite) TestConcurrentDecisions() {
	subject := s.submit()
	s.notifications.EXPECT().
		Enqueue(gomock.Any(), gomock.Any(), notifymodels.TemplateSubjectApproved, gomock.Any()).
		Return(nil).
		Times(1)

	const workers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.service.Decide(s.ctx, subject.ID, models.ApprovalApproved, s.admin, "")
			if err != nil {
				return
			}
			if result.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, changed)
	s.Equal(float64(workers-1), testutil.ToFloat64(s.metrics.NoopTransitions.WithLabelValues(machine, "decide")))
}

func (s *ServiceSuite) TestConflictingDecision() {
	subject := s.submit()
	s.notifications.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	_, err := s.service.Decide(s.ctx, subject.ID, models.ApprovalApproved, s.admin, "")
	s.Require().NoError(err)

	_, err = s.service.Decide(s.ctx, subject.ID, models.ApprovalRejected, s.admin, "changed my mind")
	s.True(dErrors.HasCode(err, dErrors.CodeConflictingDecision))

	current, err := s.service.Get(s.ctx, subject.ID)
	s.Require().NoError(err)
	s.Equal(models.ApprovalApproved, current.Status)
}

func (s *ServiceSuite) TestEnqueueFailureDoesNotFailDecision() {
	subject := s.submit()
	s.notifications.EXPECT().Enqueue(gomock.Any(), gomock.Any(), notifymodels.TemplateSubjectRejected, gomock.Any()).
		Return(errors.New("queue unavailable"))

	result, err := s.service.Decide(s.ctx, subject.ID, models.ApprovalRejected, s.admin, "incomplete")
	s.Require().NoError(err)
	s.True(result.Changed)
	s.Equal(models.ApprovalRejected, result.Subject.Status)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.NotificationEnqueueFailures))
}

func (s *ServiceSuite) TestDecideValidation() {
	s.Run("pending is not an outcome", func() {
		subject := s.submit()
		_, err := s.service.Decide(s.ctx, subject.ID, models.ApprovalPending, s.admin, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("unknown subject", func() {
		_, err := s.service.Decide(s.ctx, id.NewSubjectID(), models.ApprovalApproved, s.admin, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestOverride() {
	s.Run("flips a rejection and notifies", func() {
		subject := s.submit()
		gomock.InOrder(
			s.notifications.EXPECT().Enqueue(gomock.Any(), gomock.Any(), notifymodels.TemplateSubjectRejected, gomock.Any()).Return(nil),
			s.notifications.EXPECT().Enqueue(gomock.Any(), gomock.Any(), notifymodels.TemplateSubjectApproved, gomock.Any()).
				DoAndReturn(func(_ context.Context, _, _ string, vars map[string]string) error {
					s.Equal("appeal upheld", vars["reason"])
					return nil
				}),
		)
		_, err := s.service.Decide(s.ctx, subject.ID, models.ApprovalRejected, s.admin, "missing licence")
		s.Require().NoError(err)

		result, err := s.service.Override(s.ctx, subject.ID, models.ApprovalApproved, s.admin, "appeal upheld")
		s.Require().NoError(err)
		s.True(result.Changed)
		s.Equal(models.ApprovalApproved, result.Subject.Status)
		s.Equal("missing licence", result.Subject.DecisionReason)
	})

	s.Run("requires a reason", func() {
		subject := s.submit()
		_, err := s.service.Override(s.ctx, subject.ID, models.ApprovalApproved, s.admin, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("pending subjects must be decided first", func() {
		subject := s.submit()
		_, err := s.service.Override(s.ctx, subject.ID, models.ApprovalApproved, s.admin, "skip review")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *ServiceSuite) TestAuditTrail() {
	ctrl := gomock.NewController(s.T())
	auditor := mocks.NewMockAuditPublisher(ctrl)
	svc, err := New(s.store, s.notifications, WithAuditPublisher(auditor),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	subject, err := models.NewSubject(id.NewSubjectID(), models.SubjectTypeProfile, id.AccountID(uuid.New()),
		"profile@example.com", "", nil, time.Now())
	s.Require().NoError(err)

	var actions []string
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		actions = append(actions, e.Action)
		s.Equal(subject.ID.String(), e.Subject)
		s.Equal(subject.AccountID, e.AccountID)
		return nil
	}).Times(2)
	s.notifications.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	s.Require().NoError(svc.Submit(s.ctx, subject))
	_, err = svc.Decide(s.ctx, subject.ID, models.ApprovalApproved, s.admin, "")
	s.Require().NoError(err)

	s.Equal([]string{string(audit.EventSubjectSubmitted), string(audit.EventSubjectApproved)}, actions)
}
