// Package service runs the payment state machine. Every event resolves to
// one edge of the canonical table in models and is applied as a single
// conditional update; a replay that finds the record already in the
// target status is a no-op rather than an error.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"castline/internal/payment/gateway"
	"castline/internal/payment/models"
	"castline/internal/platform/metrics"
	"castline/pkg/attrs"
	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
	audit "castline/pkg/platform/audit"
	"castline/pkg/platform/sentinel"
	"castline/pkg/requestcontext"
)

const machine = "payment"

type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	FindByGatewaySession(ctx context.Context, sessionID string) (*models.Payment, error)
	ListByAccount(ctx context.Context, account id.AccountID) ([]*models.Payment, error)
	Transition(ctx context.Context, paymentID id.PaymentID, t models.Transition, u models.TransitionUpdate) (*models.Payment, bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Prices are the list prices used when a request omits the amount.
type Prices struct {
	Currency string
	Guide    decimal.Decimal
	Gold     decimal.Decimal
}

func (p Prices) amountFor(plan models.PlanType) decimal.Decimal {
	switch plan {
	case models.PlanGuide:
		return p.Guide
	case models.PlanGold:
		return p.Gold
	default:
		return decimal.Zero
	}
}

type Service struct {
	payments       Store
	gateway        gateway.Gateway
	prices         Prices
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

func New(payments Store, gw gateway.Gateway, prices Prices, opts ...Option) (*Service, error) {
	if payments == nil {
		return nil, errors.New("payment store is required")
	}
	if gw == nil {
		return nil, errors.New("payment gateway is required")
	}
	if prices.Currency == "" {
		prices.Currency = "usd"
	}
	s := &Service{payments: payments, gateway: gw, prices: prices, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateRequest opens a payment intent. A nil Amount uses the list price;
// for master plans that means a negotiated plan.
type CreateRequest struct {
	PlanType   models.PlanType
	Amount     *decimal.Decimal
	Currency   string
	PayerEmail string
	PayerName  string
}

// Intent is a stored payment and, for gateway plans, where to pay it.
type Intent struct {
	Payment     *models.Payment
	CheckoutURL string
}

// Result reports the outcome of one state machine event.
type Result struct {
	Payment *models.Payment
	Applied bool
}

// Create stores a new payment and requests a checkout session for plans
// that go through the gateway.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Intent, error) {
	amount := s.prices.amountFor(req.PlanType)
	if req.Amount != nil {
		amount = *req.Amount
	}
	currency := req.Currency
	if currency == "" {
		currency = s.prices.Currency
	}
	now := requestcontext.Now(ctx)
	payment, err := models.NewPayment(id.NewPaymentID(), req.PlanType, amount, currency, req.PayerEmail, req.PayerName, now)
	if err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "payment already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create payment")
	}
	s.logAudit(ctx, string(audit.EventPaymentCreated),
		"payment_id", payment.ID.String(),
		"plan_type", string(payment.PlanType),
		"decision", string(payment.Status),
	)
	if !payment.NeedsCheckout() {
		return &Intent{Payment: payment}, nil
	}

	session, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		PaymentID:  payment.ID,
		Plan:       string(payment.PlanType),
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		PayerEmail: payment.PayerEmail,
		PayerName:  payment.PayerName,
	})
	if err != nil {
		s.abandonCheckout(ctx, payment)
		return nil, dErrors.Wrap(err, dErrors.CodeGateway, "failed to create checkout session")
	}
	updated, err := s.apply(ctx, payment, models.Event{Kind: models.EventCheckoutCreated}, models.TransitionUpdate{
		Checkout: &models.CheckoutRecord{SessionID: session.SessionID, CustomerID: session.CustomerID},
		At:       requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, string(audit.EventCheckoutCreated),
		"payment_id", payment.ID.String(),
		"gateway_session_id", session.SessionID,
	)
	return &Intent{Payment: updated.Payment, CheckoutURL: session.URL}, nil
}

// abandonCheckout cancels a payment whose checkout could not be opened so
// it cannot be completed later by a stray webhook.
func (s *Service) abandonCheckout(ctx context.Context, payment *models.Payment) {
	_, err := s.apply(ctx, payment, models.Event{Kind: models.EventGatewayFailed}, models.TransitionUpdate{
		Reason: "checkout could not be created",
		At:     requestcontext.Now(ctx),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to cancel payment after checkout error",
			"payment_id", payment.ID.String(),
			"error", err,
		)
	}
}

func (s *Service) Get(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, wrapPaymentErr(err, "failed to load payment")
	}
	return payment, nil
}

// ListByAccount returns the payments whose tokens account redeemed.
func (s *Service) ListByAccount(ctx context.Context, account id.AccountID) ([]*models.Payment, error) {
	payments, err := s.payments.ListByAccount(ctx, account)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list payments")
	}
	return payments, nil
}

// Find resolves a webhook payment reference, which is either the payment
// id or the gateway session id.
func (s *Service) Find(ctx context.Context, reference string) (*models.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "payment_reference is required")
	}
	var (
		payment *models.Payment
		err     error
	)
	if u, parseErr := uuid.Parse(reference); parseErr == nil {
		payment, err = s.payments.FindByID(ctx, id.PaymentID(u))
	} else {
		payment, err = s.payments.FindByGatewaySession(ctx, reference)
	}
	if err != nil {
		return nil, wrapPaymentErr(err, "failed to load payment")
	}
	return payment, nil
}

// ApplyGatewayOutcome drives the payment referenced by a gateway webhook.
func (s *Service) ApplyGatewayOutcome(ctx context.Context, payment *models.Payment, kind models.EventKind) (*Result, error) {
	switch kind {
	case models.EventGatewaySucceeded, models.EventGatewayFailed, models.EventGatewayExpired:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "not a gateway event: "+string(kind))
	}
	return s.apply(ctx, payment, models.Event{Kind: kind}, models.TransitionUpdate{
		Reason: "gateway " + strings.TrimPrefix(string(kind), "gateway_"),
		At:     requestcontext.Now(ctx),
	})
}

// Activate finalises a negotiated master plan with its agreed amount.
func (s *Service) Activate(ctx context.Context, paymentID id.PaymentID, amount decimal.Decimal, reason string) (*Result, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, payment, models.Event{Kind: models.EventAdminActivated, Amount: amount}, models.TransitionUpdate{
		Reason: strings.TrimSpace(reason),
		Amount: &amount,
		At:     requestcontext.Now(ctx),
	})
}

// Reject closes a negotiated master plan without activating it.
func (s *Service) Reject(ctx context.Context, paymentID id.PaymentID, reason string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, payment, models.Event{Kind: models.EventAdminRejected, Reason: reason}, models.TransitionUpdate{
		Reason: reason,
		At:     requestcontext.Now(ctx),
	})
}

// Demote revokes a good payment to rejected or cancelled. Tokens issued
// for it stop being redeemable.
func (s *Service) Demote(ctx context.Context, paymentID id.PaymentID, to models.Status, reason string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, payment, models.Event{Kind: models.EventAdminDemoted, DemoteTo: to, Reason: reason}, models.TransitionUpdate{
		Reason: reason,
		At:     requestcontext.Now(ctx),
	})
}

func (s *Service) apply(ctx context.Context, payment *models.Payment, ev models.Event, u models.TransitionUpdate) (*Result, error) {
	t, err := models.Resolve(payment.PlanType, ev)
	if err != nil {
		return nil, err
	}
	updated, changed, err := s.payments.Transition(ctx, payment.ID, t, u)
	if err != nil {
		return nil, wrapPaymentErr(err, "failed to update payment")
	}
	if !changed {
		if err := models.ClassifyUnchanged(updated, t); err != nil {
			return nil, err
		}
		s.metrics.IncNoop(machine, string(ev.Kind))
		return &Result{Payment: updated, Applied: false}, nil
	}

	from := payment.Status
	s.metrics.IncTransition(machine, string(from), string(updated.Status))
	if ev.Kind != models.EventCheckoutCreated {
		s.logAudit(ctx, string(auditEventFor(ev.Kind)),
			"payment_id", updated.ID.String(),
			"plan_type", string(updated.PlanType),
			"from", string(from),
			"decision", string(updated.Status),
			"reason", u.Reason,
		)
	}
	return &Result{Payment: updated, Applied: true}, nil
}

func auditEventFor(kind models.EventKind) audit.AuditEvent {
	switch kind {
	case models.EventAdminActivated:
		return audit.EventPaymentActivated
	case models.EventAdminRejected:
		return audit.EventPaymentRejected
	case models.EventAdminDemoted:
		return audit.EventPaymentDemoted
	default:
		return audit.EventPaymentTransitioned
	}
}

func wrapPaymentErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "payment not found")
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
	actor := requestcontext.AccountID(ctx)
	actorID := ""
	if !actor.IsNil() {
		actorID = actor.String()
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		AccountID:   actor,
		Subject:     attrs.ExtractString(attributes, "payment_id"),
		Action:      event,
		Decision:    attrs.ExtractString(attributes, "decision"),
		Reason:      attrs.ExtractString(attributes, "reason"),
		ActorID:     actorID,
		RequestID:   requestcontext.RequestID(ctx),
		ClientLabel: requestcontext.ClientLabel(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}
