// Package service is the registration token broker. A token lets someone
// who paid before having an account bind that payment to the account they
// create later. Token columns live on the payment row, so issue and redeem
// are single guarded updates on that row.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	notifymodels "castline/internal/notification/models"
	"castline/internal/payment/models"
	"castline/internal/platform/metrics"
	"castline/pkg/attrs"
	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
	"castline/pkg/email"
	audit "castline/pkg/platform/audit"
	"castline/pkg/platform/sentinel"
	"castline/pkg/requestcontext"
	"castline/pkg/secrets"
)

const maxTokenCollisions = 3

type PaymentStore interface {
	FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	FindByToken(ctx context.Context, token string) (*models.Payment, error)
	IssueToken(ctx context.Context, paymentID id.PaymentID, g models.TokenGrant) (*models.Payment, bool, error)
	RedeemToken(ctx context.Context, r models.Redemption) (*models.Payment, bool, error)
}

// Notifications queues outbound messages.
type Notifications interface {
	Enqueue(ctx context.Context, recipient, templateID string, vars map[string]string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config sets token lifetimes. A zero TTL issues tokens without expiry.
type Config struct {
	TokenTTL       time.Duration
	MasterTokenTTL time.Duration
}

type Broker struct {
	payments       PaymentStore
	notifications  Notifications
	cfg            Config
	generate       func() (string, error)
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
}

type Option func(*Broker)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(b *Broker) {
		b.auditPublisher = publisher
	}
}

// WithTokenGenerator replaces secrets.Generate, for tests.
func WithTokenGenerator(fn func() (string, error)) Option {
	return func(b *Broker) {
		b.generate = fn
	}
}

func New(payments PaymentStore, notifications Notifications, cfg Config, opts ...Option) (*Broker, error) {
	if payments == nil {
		return nil, errors.New("payment store is required")
	}
	if notifications == nil {
		return nil, errors.New("notifications is required")
	}
	b := &Broker{
		payments:      payments,
		notifications: notifications,
		cfg:           cfg,
		generate:      secrets.Generate,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Issued is the result of Issue. Issued is false when the payment already
// carried a token and that token is returned unchanged.
type Issued struct {
	Token     string
	ExpiresAt *time.Time
	Issued    bool
	Payment   *models.Payment
}

// TokenStatus is the read-only view returned by Validate.
type TokenStatus struct {
	PaymentID     id.PaymentID
	PlanType      models.PlanType
	PaymentStatus models.Status
	ExpiresAt     *time.Time
	Redeemable    bool
}

// Issue creates the registration token for a paid or negotiated payment.
// Repeat calls return the existing token.
func (b *Broker) Issue(ctx context.Context, paymentID id.PaymentID) (*Issued, error) {
	payment, err := b.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, wrapPaymentErr(err, "failed to load payment")
	}
	if payment.HasToken() {
		return existing(payment), nil
	}
	if !payment.Status.IsTokenEligible() {
		return nil, ineligible(payment.Status)
	}

	now := requestcontext.Now(ctx)
	var expiresAt *time.Time
	if ttl := b.ttlFor(payment.PlanType); ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}

	var (
		updated *models.Payment
		changed bool
	)
	for range maxTokenCollisions {
		token, err := b.generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate registration token")
		}
		updated, changed, err = b.payments.IssueToken(ctx, paymentID, models.TokenGrant{
			Token:     token,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
		})
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, wrapPaymentErr(err, "failed to issue registration token")
		}
		break
	}
	if updated == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "failed to issue a unique registration token")
	}
	if !changed {
		if updated.HasToken() {
			return existing(updated), nil
		}
		return nil, ineligible(updated.Status)
	}

	b.metrics.IncTokenIssued()
	b.logAudit(ctx, string(audit.EventTokenIssued),
		"payment_id", updated.ID.String(),
		"plan_type", string(updated.PlanType),
	)
	b.notifyToken(ctx, updated)
	return &Issued{Token: updated.RegistrationToken, ExpiresAt: updated.ExpiresAt, Issued: true, Payment: updated}, nil
}

// Redeem binds the token's payment to account. A token redeems exactly once.
func (b *Broker) Redeem(ctx context.Context, token string, account id.AccountID) (*models.Payment, error) {
	if account.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "account id is required")
	}
	now := requestcontext.Now(ctx)
	payment, changed, err := b.payments.RedeemToken(ctx, models.Redemption{Token: token, AccountID: account, At: now})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, b.redeemFailed(ctx, models.ClassifyToken(nil, now), "", account)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem registration token")
	}
	if !changed {
		cause := models.ClassifyToken(payment, now)
		if cause == nil {
			cause = dErrors.New(dErrors.CodeConflict, "registration token changed during redemption")
		}
		return nil, b.redeemFailed(ctx, cause, payment.ID.String(), account)
	}

	b.metrics.IncTokenRedemption("success")
	b.logAudit(ctx, string(audit.EventTokenRedeemed),
		"payment_id", payment.ID.String(),
		"account_id", account.String(),
		"plan_type", string(payment.PlanType),
	)
	return payment, nil
}

// Validate reports whether token could be redeemed now, without redeeming
// it. Non-redeemable tokens return the same errors as Redeem.
func (b *Broker) Validate(ctx context.Context, token string) (*TokenStatus, error) {
	payment, err := b.payments.FindByToken(ctx, token)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration token")
	}
	if err := models.ClassifyToken(payment, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	return &TokenStatus{
		PaymentID:     payment.ID,
		PlanType:      payment.PlanType,
		PaymentStatus: payment.Status,
		ExpiresAt:     payment.ExpiresAt,
		Redeemable:    true,
	}, nil
}

func (b *Broker) ttlFor(plan models.PlanType) time.Duration {
	if plan == models.PlanMaster {
		return b.cfg.MasterTokenTTL
	}
	return b.cfg.TokenTTL
}

func (b *Broker) redeemFailed(ctx context.Context, cause error, paymentID string, account id.AccountID) error {
	code := dErrors.CodeOf(cause)
	b.metrics.IncTokenRedemption(string(code))
	b.logAudit(ctx, string(audit.EventTokenRedeemFailed),
		"payment_id", paymentID,
		"account_id", account.String(),
		"reason", string(code),
	)
	return cause
}

func (b *Broker) notifyToken(ctx context.Context, payment *models.Payment) {
	vars := map[string]string{
		"token":      payment.RegistrationToken,
		"plan_type":  string(payment.PlanType),
		"payer_name": payment.PayerName,
	}
	if vars["payer_name"] == "" {
		vars["payer_name"] = email.GreetingName(payment.PayerEmail)
	}
	if payment.ExpiresAt != nil {
		vars["expires_at"] = payment.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if err := b.notifications.Enqueue(ctx, payment.PayerEmail, notifymodels.TemplateRegistrationToken, vars); err != nil {
		b.metrics.IncNotificationEnqueueFailure()
		b.logger.ErrorContext(ctx, "failed to enqueue registration token notification",
			"payment_id", payment.ID.String(),
			"error", err,
		)
	}
}

func existing(p *models.Payment) *Issued {
	return &Issued{Token: p.RegistrationToken, ExpiresAt: p.ExpiresAt, Issued: false, Payment: p}
}

func ineligible(status models.Status) error {
	return dErrors.New(dErrors.CodeInvalidTransition, "registration tokens cannot be issued for payments in status "+string(status))
}

func wrapPaymentErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "payment not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (b *Broker) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	b.logger.InfoContext(ctx, event, args...)
	if b.auditPublisher == nil {
		return
	}
	accountID := attrs.ExtractAccountID(attributes, "account_id")
	if err := b.auditPublisher.Emit(ctx, audit.Event{
		AccountID:   accountID,
		Subject:     attrs.ExtractString(attributes, "payment_id"),
		Action:      event,
		Reason:      attrs.ExtractString(attributes, "reason"),
		ActorID:     attrs.ExtractString(attributes, "account_id"),
		RequestID:   requestcontext.RequestID(ctx),
		ClientLabel: requestcontext.ClientLabel(ctx),
	}); err != nil {
		b.logger.WarnContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}
