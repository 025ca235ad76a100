package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
)

// Payment is one plan purchase, created before the payer has an account.
//
// Invariants:
//   - Amount is never negative
//   - Master plans without an amount start in pending_negotiation and never
//     go through checkout
//   - The registration token is issued at most once and, once
//     RegistrationCompleted is set, is inert
//   - AccountID is set exactly once, by token redemption
type Payment struct {
	ID                    id.PaymentID    `json:"id"`
	PlanType              PlanType        `json:"plan_type"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	PayerEmail            string          `json:"payer_email"`
	PayerName             string          `json:"payer_name,omitempty"`
	Status                Status          `json:"payment_status"`
	StatusReason          string          `json:"status_reason,omitempty"`
	StatusEvent           EventKind       `json:"-"`
	GatewaySessionID      string          `json:"gateway_session_id,omitempty"`
	GatewayCustomerID     string          `json:"gateway_customer_id,omitempty"`
	RegistrationToken     string          `json:"-"`
	TokenIssuedAt         *time.Time      `json:"token_issued_at,omitempty"`
	ExpiresAt             *time.Time      `json:"expires_at,omitempty"`
	RegistrationCompleted bool            `json:"registration_completed"`
	AccountID             *id.AccountID   `json:"account_id,omitempty"`
	RedeemedAt            *time.Time      `json:"redeemed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// NewPayment builds a payment in its initial state. Guide and gold plans
// need a positive amount; a master plan with a zero amount is negotiated.
func NewPayment(paymentID id.PaymentID, plan PlanType, amount decimal.Decimal, currency, payerEmail, payerName string, now time.Time) (*Payment, error) {
	payerEmail = strings.TrimSpace(payerEmail)
	if payerEmail == "" || !strings.Contains(payerEmail, "@") {
		return nil, dErrors.New(dErrors.CodeValidation, "payer email is required")
	}
	if amount.IsNegative() {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must not be negative")
	}
	if currency == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "currency is required")
	}
	status := StatusPending
	switch plan {
	case PlanGuide, PlanGold:
		if !amount.IsPositive() {
			return nil, dErrors.New(dErrors.CodeValidation, "paid plans require a positive amount")
		}
	case PlanMaster:
		if amount.IsZero() {
			status = StatusPendingNegotiation
		}
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unknown plan type")
	}
	return &Payment{
		ID:         paymentID,
		PlanType:   plan,
		Amount:     amount,
		Currency:   strings.ToLower(currency),
		PayerEmail: payerEmail,
		PayerName:  strings.TrimSpace(payerName),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// NeedsCheckout reports whether the payment goes through the gateway.
func (p *Payment) NeedsCheckout() bool {
	return p.Status == StatusPending
}

// HasToken reports whether a registration token was issued.
func (p *Payment) HasToken() bool {
	return p.RegistrationToken != ""
}

// RedeemedBy reports whether the payment's token was redeemed by account.
func (p *Payment) RedeemedBy(account id.AccountID) bool {
	return p.RegistrationCompleted && p.AccountID != nil && *p.AccountID == account
}

// ClassifyToken explains why a token lookup cannot be redeemed at now.
// A nil payment means no row carries the token.
func ClassifyToken(p *Payment, now time.Time) error {
	switch {
	case p == nil:
		return dErrors.New(dErrors.CodeTokenNotFound, "registration token not found")
	case p.RegistrationCompleted:
		return dErrors.New(dErrors.CodeTokenAlreadyRedeemed, "registration token was already redeemed")
	case !p.Status.IsTokenEligible():
		return dErrors.New(dErrors.CodeTokenRevoked, "payment for this registration token was "+string(p.Status))
	case p.ExpiresAt != nil && !now.Before(*p.ExpiresAt):
		return dErrors.New(dErrors.CodeTokenExpired, "registration token has expired")
	default:
		return nil
	}
}

// CheckoutRecord carries gateway identifiers from checkout creation.
type CheckoutRecord struct {
	SessionID  string
	CustomerID string
}

// TransitionUpdate carries the columns written alongside a status change.
type TransitionUpdate struct {
	Reason string
	// Amount replaces the recorded amount when set (negotiated activation).
	Amount   *decimal.Decimal
	Checkout *CheckoutRecord
	At       time.Time
}

// TokenGrant is the input to a conditional token issue.
type TokenGrant struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt *time.Time
}

// Redemption is the input to a conditional token redemption.
type Redemption struct {
	Token     string
	AccountID id.AccountID
	At        time.Time
}
