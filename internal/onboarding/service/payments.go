package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"castline/internal/payment/gateway"
	paymentmodels "castline/internal/payment/models"
	paymentsvc "castline/internal/payment/service"
	registration "castline/internal/registration/service"
	"castline/pkg/attrs"
	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
	audit "castline/pkg/platform/audit"
	"castline/pkg/platform/authz"
	"castline/pkg/requestcontext"
)

// WebhookEvent is a gateway notification after transport authentication.
type WebhookEvent struct {
	EventID          string
	PaymentReference string
	Status           string
}

// WebhookResult is returned for every accepted webhook, duplicates included.
type WebhookResult struct {
	PaymentID id.PaymentID
	Applied   bool
	Duplicate bool
	Status    paymentmodels.Status
}

// CreatePaymentIntent opens a payment for a payer who may not have an
// account yet. A master plan starts in negotiation and gets its token
// straight away.
func (s *Service) CreatePaymentIntent(ctx context.Context, req paymentsvc.CreateRequest) (_ *paymentsvc.Intent, err error) {
	ctx, span := s.startSpan(ctx, "CreatePaymentIntent", attribute.String("payment.plan", string(req.PlanType)))
	defer func() { endSpan(span, err) }()

	intent, err := s.payments.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if intent.Payment.Status == paymentmodels.StatusPendingNegotiation {
		issued, err := s.tokens.Issue(ctx, intent.Payment.ID)
		if err != nil {
			return nil, err
		}
		intent.Payment = issued.Payment
	}
	span.SetAttributes(
		attribute.String("payment.id", intent.Payment.ID.String()),
		attribute.String("payment.status", string(intent.Payment.Status)),
	)
	return intent, nil
}

// ApplyGatewayEvent adapts a verified provider webhook.
func (s *Service) ApplyGatewayEvent(ctx context.Context, ev gateway.Event) (*WebhookResult, error) {
	return s.ApplyPaymentWebhook(ctx, WebhookEvent{
		EventID:          ev.EventID,
		PaymentReference: ev.PaymentReference,
		Status:           string(ev.Outcome),
	})
}

// ApplyPaymentWebhook drives the payment machine from a gateway event. A
// known event id short-circuits before the machine runs. The id is only
// recorded once the transition and any token issue have succeeded, so a
// failed attempt is safe for the gateway to redeliver.
func (s *Service) ApplyPaymentWebhook(ctx context.Context, ev WebhookEvent) (_ *WebhookResult, err error) {
	ctx, span := s.startSpan(ctx, "ApplyPaymentWebhook",
		attribute.String("webhook.event_id", ev.EventID),
		attribute.String("webhook.status", ev.Status),
	)
	defer func() { endSpan(span, err) }()

	ev.EventID = strings.TrimSpace(ev.EventID)
	if ev.EventID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "gateway_event_id is required")
	}
	kind, err := paymentmodels.ParseGatewayOutcome(ev.Status)
	if err != nil {
		return nil, err
	}

	seen, err := s.ledger.Seen(ctx, ev.EventID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check webhook ledger")
	}
	payment, err := s.payments.Find(ctx, ev.PaymentReference)
	if err != nil {
		return nil, err
	}
	if seen {
		s.metrics.IncWebhook("duplicate")
		s.logAudit(ctx, string(audit.EventWebhookDuplicate),
			"payment_id", payment.ID.String(),
			"gateway_event_id", ev.EventID,
		)
		span.SetAttributes(attribute.Bool("webhook.duplicate", true))
		return &WebhookResult{PaymentID: payment.ID, Duplicate: true, Status: payment.Status}, nil
	}

	result, err := s.payments.ApplyGatewayOutcome(ctx, payment, kind)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			s.metrics.IncWebhook("rejected")
			s.logAudit(ctx, string(audit.EventWebhookRejected),
				"payment_id", payment.ID.String(),
				"gateway_event_id", ev.EventID,
				"reason", dErrors.MessageOf(err),
			)
		}
		return nil, err
	}
	if result.Payment.Status.IsGood() {
		if _, err := s.tokens.Issue(ctx, result.Payment.ID); err != nil {
			return nil, err
		}
	}
	if _, err := s.ledger.Record(ctx, ev.EventID, result.Payment.ID, requestcontext.Now(ctx)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record webhook event")
	}

	outcome := "noop"
	if result.Applied {
		outcome = "applied"
	}
	s.metrics.IncWebhook(outcome)
	span.SetAttributes(attribute.Bool("webhook.applied", result.Applied))
	return &WebhookResult{PaymentID: result.Payment.ID, Applied: result.Applied, Status: result.Payment.Status}, nil
}

// ActivatePayment finalises a negotiated master plan and issues its token
// if it has none.
func (s *Service) ActivatePayment(ctx context.Context, paymentID id.PaymentID, amount decimal.Decimal, reason string) (_ *paymentsvc.Result, err error) {
	ctx, span := s.startSpan(ctx, "ActivatePayment", attribute.String("payment.id", paymentID.String()))
	defer func() { endSpan(span, err) }()

	if err := s.authorizer.Require(ctx, authz.CapabilityManagePayments); err != nil {
		return nil, err
	}
	result, err := s.payments.Activate(ctx, paymentID, amount, reason)
	if err != nil {
		return nil, err
	}
	if _, err := s.tokens.Issue(ctx, paymentID); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) RejectPayment(ctx context.Context, paymentID id.PaymentID, reason string) (_ *paymentsvc.Result, err error) {
	ctx, span := s.startSpan(ctx, "RejectPayment", attribute.String("payment.id", paymentID.String()))
	defer func() { endSpan(span, err) }()

	if err := s.authorizer.Require(ctx, authz.CapabilityManagePayments); err != nil {
		return nil, err
	}
	return s.payments.Reject(ctx, paymentID, reason)
}

// DemotePayment revokes a good payment; its token stops redeeming.
func (s *Service) DemotePayment(ctx context.Context, paymentID id.PaymentID, to paymentmodels.Status, reason string) (_ *paymentsvc.Result, err error) {
	ctx, span := s.startSpan(ctx, "DemotePayment",
		attribute.String("payment.id", paymentID.String()),
		attribute.String("payment.target", string(to)),
	)
	defer func() { endSpan(span, err) }()

	if err := s.authorizer.Require(ctx, authz.CapabilityManagePayments); err != nil {
		return nil, err
	}
	return s.payments.Demote(ctx, paymentID, to, reason)
}

// GetPayment returns a payment to the account that redeemed it or to a
// reader.
func (s *Service) GetPayment(ctx context.Context, paymentID id.PaymentID) (*paymentmodels.Payment, error) {
	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.AccountID != nil {
		if err := s.requireOwnerOr(ctx, *payment.AccountID, authz.CapabilityReadPayments); err != nil {
			return nil, err
		}
		return payment, nil
	}
	if err := s.authorizer.Require(ctx, authz.CapabilityReadPayments); err != nil {
		return nil, err
	}
	return payment, nil
}

// IssueToken mints, or returns, the registration token for a payment.
func (s *Service) IssueToken(ctx context.Context, paymentID id.PaymentID) (_ *registration.Issued, err error) {
	ctx, span := s.startSpan(ctx, "IssueToken", attribute.String("payment.id", paymentID.String()))
	defer func() { endSpan(span, err) }()

	if err := s.authorizer.Require(ctx, authz.CapabilityIssueTokens); err != nil {
		return nil, err
	}
	issued, err := s.tokens.Issue(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("token.issued", issued.Issued))
	return issued, nil
}

// RedeemToken binds a paid plan to the account created after payment.
func (s *Service) RedeemToken(ctx context.Context, token string, account id.AccountID) (_ *paymentmodels.Payment, err error) {
	ctx, span := s.startSpan(ctx, "RedeemToken")
	defer func() { endSpan(span, err) }()

	if principal := requestcontext.AccountID(ctx); !principal.IsNil() && principal != account {
		return nil, dErrors.New(dErrors.CodeForbidden, "tokens can only be redeemed for the caller's own account")
	}
	payment, err := s.tokens.Redeem(ctx, strings.TrimSpace(token), account)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.id", payment.ID.String()))
	return payment, nil
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*registration.TokenStatus, error) {
	return s.tokens.Validate(ctx, strings.TrimSpace(token))
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
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Subject:     attrs.ExtractString(attributes, "payment_id"),
		Action:      event,
		Reason:      attrs.ExtractString(attributes, "reason"),
		ActorID:     "payment-gateway",
		RequestID:   requestcontext.RequestID(ctx),
		ClientLabel: requestcontext.ClientLabel(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}
