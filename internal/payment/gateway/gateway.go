// Package gateway is the contract between the payment service and the
// external payment provider. Adapters live in subpackages.
package gateway

//go:generate mockgen -source=gateway.go -destination=mocks/mocks.go -package=mocks Gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	id "castline/pkg/domain"
)

// ErrProviderDown marks failures where retrying later may succeed.
var ErrProviderDown = errors.New("payment provider unavailable")

// CheckoutRequest describes the hosted checkout to open for one payment.
type CheckoutRequest struct {
	PaymentID  id.PaymentID
	Plan       string
	Amount     decimal.Decimal
	Currency   string
	PayerEmail string
	PayerName  string
}

// CheckoutSession is the provider's answer. SessionID and CustomerID are
// opaque and compared only for equality.
type CheckoutSession struct {
	SessionID  string
	CustomerID string
	URL        string
}

// Gateway opens checkout sessions with a payment provider.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Outcome is the provider-neutral result reported by a webhook.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
)

// Event is a verified webhook normalised for the payment state machine.
type Event struct {
	EventID string
	// PaymentReference is the payment id or the provider session id.
	PaymentReference string
	Outcome          Outcome
}
