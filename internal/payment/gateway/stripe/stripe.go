// Package stripe adapts Stripe Checkout to the gateway contract and
// verifies Stripe webhook signatures.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"castline/internal/payment/gateway"
)

// Gateway opens Stripe Checkout sessions in payment mode.
type Gateway struct {
	client     *client.API
	successURL string
	cancelURL  string
}

func New(secretKey, successURL, cancelURL string) *Gateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Gateway{client: sc, successURL: successURL, cancelURL: cancelURL}
}

func (g *Gateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	cents := req.Amount.Round(2).Shift(2).IntPart()
	params := &stripeapi.CheckoutSessionParams{
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:        stripeapi.String(g.successURL),
		CancelURL:         stripeapi.String(g.cancelURL),
		CustomerEmail:     stripeapi.String(req.PayerEmail),
		ClientReferenceID: stripeapi.String(req.PaymentID.String()),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{{
			Quantity: stripeapi.Int64(1),
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripeapi.String(req.Currency),
				UnitAmount: stripeapi.Int64(cents),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String("Castline " + req.Plan + " plan"),
				},
			},
		}},
	}
	params.AddMetadata("payment_id", req.PaymentID.String())
	params.AddMetadata("plan", req.Plan)
	params.IdempotencyKey = stripeapi.String("checkout-" + req.PaymentID.String())
	params.Context = ctx

	session, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	out := &gateway.CheckoutSession{SessionID: session.ID, URL: session.URL}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	return out, nil
}

func mapStripeError(err error) error {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s", gateway.ErrProviderDown, stripeErr.Msg)
	}
	return fmt.Errorf("stripe checkout: %w", err)
}

// WebhookVerifier checks Stripe-Signature headers and normalises checkout
// events.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Parse verifies the payload and maps it to a gateway event. Event types
// that do not affect a payment return (nil, nil).
func (v *WebhookVerifier) Parse(payload []byte, signature string) (*gateway.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("stripe signature invalid: %w", err)
	}

	var outcome gateway.Outcome
	switch event.Type {
	case "checkout.session.completed":
		outcome = gateway.OutcomeSucceeded
	case "checkout.session.async_payment_succeeded":
		outcome = gateway.OutcomeSucceeded
	case "checkout.session.async_payment_failed":
		outcome = gateway.OutcomeFailed
	case "checkout.session.expired":
		outcome = gateway.OutcomeExpired
	default:
		return nil, nil
	}

	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	// Delayed payment methods complete the session before the money moves.
	if event.Type == "checkout.session.completed" && session.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusUnpaid {
		return nil, nil
	}

	return &gateway.Event{
		EventID:          event.ID,
		PaymentReference: session.ID,
		Outcome:          outcome,
	}, nil
}
