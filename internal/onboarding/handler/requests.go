package handler

import (
	"strings"

	"github.com/shopspring/decimal"

	paymentmodels "castline/internal/payment/models"
	subjectmodels "castline/internal/subject/models"
	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
)

const (
	maxEmailLength  = 254
	maxReasonLength = 1000
	maxTokenLength  = 128
)

// SubmitSubjectRequest is the body of POST /subjects. AccountID defaults
// to the authenticated account.
type SubmitSubjectRequest struct {
	SubjectType string  `json:"subject_type"`
	AccountID   string  `json:"account_id,omitempty"`
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	PaymentID   *string `json:"payment_id,omitempty"`

	parsedType      subjectmodels.SubjectType
	parsedAccountID id.AccountID
	parsedPaymentID *id.PaymentID
}

func (r *SubmitSubjectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Email) > maxEmailLength {
		return dErrors.New(dErrors.CodeValidation, "email is too long")
	}
	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	t, err := subjectmodels.ParseSubjectType(r.SubjectType)
	if err != nil {
		return err
	}
	r.parsedType = t
	if s := strings.TrimSpace(r.AccountID); s != "" {
		accountID, err := id.ParseAccountID(s)
		if err != nil {
			return err
		}
		r.parsedAccountID = accountID
	}
	if r.PaymentID != nil {
		paymentID, err := id.ParsePaymentID(strings.TrimSpace(*r.PaymentID))
		if err != nil {
			return err
		}
		r.parsedPaymentID = &paymentID
	}
	return nil
}

// DecisionRequest is the body of the decision and override endpoints.
type DecisionRequest struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`

	parsedOutcome subjectmodels.ApprovalStatus
}

func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	outcome := subjectmodels.ApprovalStatus(strings.ToLower(strings.TrimSpace(r.Outcome)))
	if err := subjectmodels.ValidateOutcome(outcome); err != nil {
		return err
	}
	r.parsedOutcome = outcome
	return nil
}

// PayerInfo identifies a payer who may not have an account yet.
type PayerInfo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// CreatePaymentRequest is the body of POST /payments. An omitted amount
// uses the plan's list price.
type CreatePaymentRequest struct {
	PlanType  string           `json:"plan_type"`
	PayerInfo PayerInfo        `json:"payer_info"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Currency  string           `json:"currency,omitempty"`

	parsedPlan paymentmodels.PlanType
}

func (r *CreatePaymentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.PayerInfo.Email) > maxEmailLength {
		return dErrors.New(dErrors.CodeValidation, "payer_info.email is too long")
	}
	r.PayerInfo.Email = strings.TrimSpace(r.PayerInfo.Email)
	if r.PayerInfo.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "payer_info.email is required")
	}
	plan, err := paymentmodels.ParsePlanType(r.PlanType)
	if err != nil {
		return err
	}
	r.parsedPlan = plan
	if r.Amount != nil && r.Amount.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "amount must not be negative")
	}
	r.Currency = strings.ToLower(strings.TrimSpace(r.Currency))
	if r.Currency != "" && len(r.Currency) != 3 {
		return dErrors.New(dErrors.CodeValidation, "currency must be a 3-letter ISO code")
	}
	return nil
}

// ActivatePaymentRequest carries the negotiated final amount.
type ActivatePaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason,omitempty"`
}

func (r *ActivatePaymentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if !r.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

type RejectPaymentRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectPaymentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}

type DemotePaymentRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`

	parsedStatus paymentmodels.Status
}

func (r *DemotePaymentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	status, err := paymentmodels.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	if !status.IsRevoked() {
		return dErrors.New(dErrors.CodeValidation, "status must be rejected or cancelled")
	}
	r.parsedStatus = status
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}

// PaymentWebhookRequest is the generic gateway callback body.
type PaymentWebhookRequest struct {
	GatewayEventID   string `json:"gateway_event_id"`
	PaymentReference string `json:"payment_reference"`
	Status           string `json:"status"`
}

func (r *PaymentWebhookRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.GatewayEventID = strings.TrimSpace(r.GatewayEventID)
	r.PaymentReference = strings.TrimSpace(r.PaymentReference)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	switch {
	case r.GatewayEventID == "":
		return dErrors.New(dErrors.CodeValidation, "gateway_event_id is required")
	case r.PaymentReference == "":
		return dErrors.New(dErrors.CodeValidation, "payment_reference is required")
	case r.Status == "":
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

// RedeemTokenRequest binds a registration token to an account.
type RedeemTokenRequest struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`

	parsedAccountID id.AccountID
}

func (r *RedeemTokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Token) > maxTokenLength {
		return dErrors.New(dErrors.CodeValidation, "token is too long")
	}
	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	accountID, err := id.ParseAccountID(strings.TrimSpace(r.AccountID))
	if err != nil {
		return err
	}
	r.parsedAccountID = accountID
	return nil
}
