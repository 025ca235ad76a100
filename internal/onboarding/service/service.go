// Package service is the onboarding orchestrator. It composes the approval
// machine, the payment machine, the token broker and the webhook ledger
// behind one surface, owns capability checks, and answers the only
// cross-entity question in the system: is a subject visible?
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	paymentmodels "castline/internal/payment/models"
	paymentsvc "castline/internal/payment/service"
	"castline/internal/platform/metrics"
	registration "castline/internal/registration/service"
	subjectmodels "castline/internal/subject/models"
	id "castline/pkg/domain"
	audit "castline/pkg/platform/audit"
	"castline/pkg/platform/authz"
	"castline/pkg/platform/tx"
)

const tracerName = "castline/onboarding"

type Subjects interface {
	Submit(ctx context.Context, subject *subjectmodels.Subject) error
	Get(ctx context.Context, subjectID id.SubjectID) (*subjectmodels.Subject, error)
	List(ctx context.Context, filter subjectmodels.Filter) ([]*subjectmodels.Subject, error)
	Decide(ctx context.Context, subjectID id.SubjectID, outcome subjectmodels.ApprovalStatus, actorID id.AccountID, reason string) (*subjectmodels.DecisionResult, error)
	Override(ctx context.Context, subjectID id.SubjectID, outcome subjectmodels.ApprovalStatus, actorID id.AccountID, reason string) (*subjectmodels.DecisionResult, error)
}

type Payments interface {
	Create(ctx context.Context, req paymentsvc.CreateRequest) (*paymentsvc.Intent, error)
	Get(ctx context.Context, paymentID id.PaymentID) (*paymentmodels.Payment, error)
	Find(ctx context.Context, reference string) (*paymentmodels.Payment, error)
	ListByAccount(ctx context.Context, account id.AccountID) ([]*paymentmodels.Payment, error)
	ApplyGatewayOutcome(ctx context.Context, payment *paymentmodels.Payment, kind paymentmodels.EventKind) (*paymentsvc.Result, error)
	Activate(ctx context.Context, paymentID id.PaymentID, amount decimal.Decimal, reason string) (*paymentsvc.Result, error)
	Reject(ctx context.Context, paymentID id.PaymentID, reason string) (*paymentsvc.Result, error)
	Demote(ctx context.Context, paymentID id.PaymentID, to paymentmodels.Status, reason string) (*paymentsvc.Result, error)
}

type Tokens interface {
	Issue(ctx context.Context, paymentID id.PaymentID) (*registration.Issued, error)
	Redeem(ctx context.Context, token string, account id.AccountID) (*paymentmodels.Payment, error)
	Validate(ctx context.Context, token string) (*registration.TokenStatus, error)
}

// WebhookLedger remembers gateway event ids that were fully processed.
type WebhookLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID string, paymentID id.PaymentID, at time.Time) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	subjects       Subjects
	payments       Payments
	tokens         Tokens
	ledger         WebhookLedger
	authorizer     authz.Authorizer
	runner         tx.Runner
	tracer         trace.Tracer
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

// WithTxRunner sets the runner used for the visibility snapshot. Without
// one the reads run outside a transaction.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.runner = runner
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(subjects Subjects, payments Payments, tokens Tokens, ledger WebhookLedger, authorizer authz.Authorizer, opts ...Option) (*Service, error) {
	switch {
	case subjects == nil:
		return nil, errors.New("subjects is required")
	case payments == nil:
		return nil, errors.New("payments is required")
	case tokens == nil:
		return nil, errors.New("tokens is required")
	case ledger == nil:
		return nil, errors.New("webhook ledger is required")
	case authorizer == nil:
		return nil, errors.New("authorizer is required")
	}
	s := &Service{
		subjects:   subjects,
		payments:   payments,
		tokens:     tokens,
		ledger:     ledger,
		authorizer: authorizer,
		runner:     tx.NoopRunner{},
		tracer:     otel.Tracer(tracerName),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) startSpan(ctx context.Context, name string, kv ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "onboarding."+name, trace.WithAttributes(kv...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
