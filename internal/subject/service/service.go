// Package service runs the approval state machine for onboarding subjects.
//
// Decide applies the first administrative decision with a conditional
// update; repeats of the same outcome are no-ops and a different outcome is
// a ConflictingDecision. Override is the only way out of a terminal state.
// Every state change enqueues a notification after it is stored; a failed
// enqueue is logged and counted but never fails the decision.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	notifymodels "castline/internal/notification/models"
	"castline/internal/platform/metrics"
	"castline/internal/subject/models"
	"castline/pkg/attrs"
	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
	audit "castline/pkg/platform/audit"
	"castline/pkg/platform/sentinel"
	"castline/pkg/requestcontext"
)

const machine = "approval"

type Store interface {
	Create(ctx context.Context, subject *models.Subject) error
	FindByID(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Subject, error)
	Decide(ctx context.Context, subjectID id.SubjectID, d models.Decision) (*models.Subject, bool, error)
	Override(ctx context.Context, subjectID id.SubjectID, d models.Decision) (*models.Subject, bool, error)
}

// Notifications queues outbound messages.
type Notifications interface {
	Enqueue(ctx context.Context, recipient, templateID string, vars map[string]string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns subject persistence and approval transitions. It trusts its
// caller for authorization.
type Service struct {
	subjects       Store
	notifications  Notifications
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(subjects Store, notifications Notifications, opts ...Option) (*Service, error) {
	if subjects == nil {
		return nil, errors.New("subject store is required")
	}
	if notifications == nil {
		return nil, errors.New("notifications is required")
	}
	s := &Service{subjects: subjects, notifications: notifications, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit stores a new pending subject.
func (s *Service) Submit(ctx context.Context, subject *models.Subject) error {
	if err := s.subjects.Create(ctx, subject); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "subject already exists")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create subject")
	}
	s.logAudit(ctx, string(audit.EventSubjectSubmitted),
		"subject_id", subject.ID.String(),
		"account_id", subject.AccountID.String(),
		"subject_type", string(subject.Type),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		return nil, wrapSubjectErr(err, "failed to load subject")
	}
	return subject, nil
}

func (s *Service) List(ctx context.Context, filter models.Filter) ([]*models.Subject, error) {
	subjects, err := s.subjects.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list subjects")
	}
	return subjects, nil
}

// Decide records the administrative decision for a pending subject.
func (s *Service) Decide(ctx context.Context, subjectID id.SubjectID, outcome models.ApprovalStatus, actorID id.AccountID, reason string) (*models.DecisionResult, error) {
	if err := models.ValidateOutcome(outcome); err != nil {
		return nil, err
	}
	d := models.Decision{
		Outcome: outcome,
		ActorID: actorID,
		Reason:  strings.TrimSpace(reason),
		At:      requestcontext.Now(ctx),
	}
	subject, changed, err := s.subjects.Decide(ctx, subjectID, d)
	if err != nil {
		return nil, wrapSubjectErr(err, "failed to decide subject")
	}
	if !changed {
		if err := models.ResolveDecide(subject.Status, outcome); err != nil {
			return nil, err
		}
		s.metrics.IncNoop(machine, "decide")
		return &models.DecisionResult{Subject: subject, Changed: false}, nil
	}

	s.metrics.IncTransition(machine, string(models.ApprovalPending), string(outcome))
	event := audit.EventSubjectApproved
	if outcome == models.ApprovalRejected {
		event = audit.EventSubjectRejected
	}
	s.logAudit(ctx, string(event),
		"subject_id", subject.ID.String(),
		"account_id", subject.AccountID.String(),
		"actor_id", actorID.String(),
		"decision", string(outcome),
		"reason", d.Reason,
	)
	s.notifyOutcome(ctx, subject)
	return &models.DecisionResult{Subject: subject, Changed: true}, nil
}

// Override flips a terminal decision to the opposite outcome.
func (s *Service) Override(ctx context.Context, subjectID id.SubjectID, outcome models.ApprovalStatus, actorID id.AccountID, reason string) (*models.DecisionResult, error) {
	if err := models.ValidateOutcome(outcome); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "override reason is required")
	}
	d := models.Decision{
		Outcome: outcome,
		ActorID: actorID,
		Reason:  reason,
		At:      requestcontext.Now(ctx),
	}
	subject, changed, err := s.subjects.Override(ctx, subjectID, d)
	if err != nil {
		return nil, wrapSubjectErr(err, "failed to override subject")
	}
	if !changed {
		if err := models.ResolveOverride(subject.Status, outcome); err != nil {
			return nil, err
		}
		s.metrics.IncNoop(machine, "override")
		return &models.DecisionResult{Subject: subject, Changed: false}, nil
	}

	s.metrics.IncTransition(machine, string(outcome.Opposite()), string(outcome))
	s.logAudit(ctx, string(audit.EventSubjectOverridden),
		"subject_id", subject.ID.String(),
		"account_id", subject.AccountID.String(),
		"actor_id", actorID.String(),
		"decision", string(outcome),
		"reason", reason,
	)
	s.notifyOutcome(ctx, subject)
	return &models.DecisionResult{Subject: subject, Changed: true}, nil
}

func (s *Service) notifyOutcome(ctx context.Context, subject *models.Subject) {
	template := notifymodels.TemplateSubjectApproved
	reason := subject.DecisionReason
	if subject.Status == models.ApprovalRejected {
		template = notifymodels.TemplateSubjectRejected
	}
	if subject.OverriddenAt != nil {
		reason = subject.OverrideReason
	}
	vars := map[string]string{
		"subject_id":   subject.ID.String(),
		"subject_type": string(subject.Type),
		"display_name": subject.DisplayName,
		"outcome":      string(subject.Status),
		"reason":       reason,
	}
	if err := s.notifications.Enqueue(ctx, subject.Email, template, vars); err != nil {
		s.metrics.IncNotificationEnqueueFailure()
		s.logger.ErrorContext(ctx, "failed to enqueue decision notification",
			"subject_id", subject.ID.String(),
			"template_id", template,
			"error", err,
		)
	}
}

func wrapSubjectErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "subject not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
	if s.auditPublisher == nil {
		return
	}
	accountID := attrs.ExtractAccountID(attributes, "account_id")
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		AccountID:   accountID,
		Subject:     attrs.ExtractString(attributes, "subject_id"),
		Action:      event,
		Decision:    attrs.ExtractString(attributes, "decision"),
		Reason:      attrs.ExtractString(attributes, "reason"),
		ActorID:     attrs.ExtractString(attributes, "actor_id"),
		RequestID:   requestcontext.RequestID(ctx),
		ClientLabel: requestcontext.ClientLabel(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}
