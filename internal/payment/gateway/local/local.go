// Package local is a Gateway that never leaves the process. It hands out
// synthetic session ids and points payers at a configurable checkout page;
// the generic webhook endpoint then reports the outcome.
package local

import (
	"context"
	"net/url"

	"github.com/google/uuid"

	"castline/internal/payment/gateway"
)

type Gateway struct {
	checkoutURL string
}

func New(checkoutURL string) *Gateway {
	return &Gateway{checkoutURL: checkoutURL}
}

func (g *Gateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	sessionID := "local_" + uuid.NewString()
	u, err := url.Parse(g.checkoutURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("payment_id", req.PaymentID.String())
	u.RawQuery = q.Encode()
	return &gateway.CheckoutSession{
		SessionID: sessionID,
		URL:       u.String(),
	}, nil
}
