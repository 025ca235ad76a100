package handler

import (
	"time"

	"github.com/shopspring/decimal"

	onboarding "castline/internal/onboarding/service"
	paymentmodels "castline/internal/payment/models"
	paymentsvc "castline/internal/payment/service"
	registration "castline/internal/registration/service"
	subjectmodels "castline/internal/subject/models"
)

// SubjectListResponse wraps GET /subjects.
type SubjectListResponse struct {
	Subjects []*subjectmodels.Subject `json:"subjects"`
	Count    int                      `json:"count"`
}

// DecisionResponse is returned by the decision and override endpoints.
type DecisionResponse struct {
	Status  subjectmodels.ApprovalStatus `json:"status"`
	Changed bool                         `json:"changed"`
	Subject *subjectmodels.Subject       `json:"subject"`
}

func FromDecision(result *subjectmodels.DecisionResult) *DecisionResponse {
	return &DecisionResponse{
		Status:  result.Subject.Status,
		Changed: result.Changed,
		Subject: result.Subject,
	}
}

// PaymentIntentResponse is returned by POST /payments.
type PaymentIntentResponse struct {
	Payment     *paymentmodels.Payment `json:"payment"`
	CheckoutURL string                 `json:"checkout_url,omitempty"`
}

// PaymentTransitionResponse is returned by admin payment operations.
type PaymentTransitionResponse struct {
	Status  paymentmodels.Status   `json:"payment_status"`
	Applied bool                   `json:"applied"`
	Payment *paymentmodels.Payment `json:"payment"`
}

func FromPaymentResult(result *paymentsvc.Result) *PaymentTransitionResponse {
	return &PaymentTransitionResponse{
		Status:  result.Payment.Status,
		Applied: result.Applied,
		Payment: result.Payment,
	}
}

// TokenResponse is returned by POST /payments/{id}/token.
type TokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at"`
	Issued    bool       `json:"issued"`
}

func FromIssued(issued *registration.Issued) *TokenResponse {
	return &TokenResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt, Issued: issued.Issued}
}

// WebhookResponse always accompanies a 200 so gateways stop retrying.
type WebhookResponse struct {
	PaymentID string               `json:"payment_id"`
	Applied   bool                 `json:"applied"`
	Duplicate bool                 `json:"duplicate"`
	Status    paymentmodels.Status `json:"status"`
}

func FromWebhook(result *onboarding.WebhookResult) *WebhookResponse {
	return &WebhookResponse{
		PaymentID: result.PaymentID.String(),
		Applied:   result.Applied,
		Duplicate: result.Duplicate,
		Status:    result.Status,
	}
}

// RedeemResponse confirms which payment the account now owns.
type RedeemResponse struct {
	PaymentID  string                 `json:"payment_id"`
	PlanType   paymentmodels.PlanType `json:"plan_type"`
	Status     paymentmodels.Status   `json:"payment_status"`
	Amount     decimal.Decimal        `json:"amount"`
	AccountID  string                 `json:"account_id"`
	RedeemedAt *time.Time             `json:"redeemed_at,omitempty"`
}

func FromRedeemed(p *paymentmodels.Payment) *RedeemResponse {
	resp := &RedeemResponse{
		PaymentID:  p.ID.String(),
		PlanType:   p.PlanType,
		Status:     p.Status,
		Amount:     p.Amount,
		RedeemedAt: p.RedeemedAt,
	}
	if p.AccountID != nil {
		resp.AccountID = p.AccountID.String()
	}
	return resp
}

// TokenStatusResponse is returned by GET /registration/tokens/{token}.
type TokenStatusResponse struct {
	PlanType      paymentmodels.PlanType `json:"plan_type"`
	PaymentStatus paymentmodels.Status   `json:"payment_status"`
	ExpiresAt     *time.Time             `json:"expires_at"`
	Redeemable    bool                   `json:"redeemable"`
}

func FromTokenStatus(status *registration.TokenStatus) *TokenStatusResponse {
	return &TokenStatusResponse{
		PlanType:      status.PlanType,
		PaymentStatus: status.PaymentStatus,
		ExpiresAt:     status.ExpiresAt,
		Redeemable:    status.Redeemable,
	}
}
