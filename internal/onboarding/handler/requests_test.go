package handler

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentmodels "castline/internal/payment/models"
	subjectmodels "castline/internal/subject/models"
	dErrors "castline/pkg/domain-errors"
)

func TestSubmitSubjectRequestValidate(t *testing.T) {
	paymentID := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

	t.Run("normalizes and parses", func(t *testing.T) {
		req := &SubmitSubjectRequest{SubjectType: " Partner ", Email: " p@example.com ", PaymentID: &paymentID}
		require.NoError(t, req.Validate())
		assert.Equal(t, subjectmodels.SubjectTypePartner, req.parsedType)
		assert.Equal(t, "p@example.com", req.Email)
		require.NotNil(t, req.parsedPaymentID)
		assert.Equal(t, paymentID, req.parsedPaymentID.String())
		assert.True(t, req.parsedAccountID.IsNil())
	})

	cases := map[string]*SubmitSubjectRequest{
		"missing email":  {SubjectType: "guide"},
		"email too long": {SubjectType: "guide", Email: strings.Repeat("a", maxEmailLength+1)},
		"unknown type":   {SubjectType: "boat", Email: "g@example.com"},
		"bad account id": {SubjectType: "guide", Email: "g@example.com", AccountID: "nope"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, req.Validate())
		})
	}
}

func TestDecisionRequestValidate(t *testing.T) {
	req := &DecisionRequest{Outcome: "REJECTED", Reason: "  spam  "}
	require.NoError(t, req.Validate())
	assert.Equal(t, subjectmodels.ApprovalRejected, req.parsedOutcome)
	assert.Equal(t, "spam", req.Reason)

	err := (&DecisionRequest{Outcome: "pending"}).Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	err = (&DecisionRequest{Outcome: "approved", Reason: strings.Repeat("x", maxReasonLength+1)}).Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCreatePaymentRequestValidate(t *testing.T) {
	neg := decimal.NewFromInt(-1)

	req := &CreatePaymentRequest{PlanType: "gold", PayerInfo: PayerInfo{Email: "p@example.com"}, Currency: " EUR "}
	require.NoError(t, req.Validate())
	assert.Equal(t, paymentmodels.PlanGold, req.parsedPlan)
	assert.Equal(t, "eur", req.Currency)

	assert.Error(t, (&CreatePaymentRequest{PlanType: "gold"}).Validate())
	assert.Error(t, (&CreatePaymentRequest{PlanType: "silver", PayerInfo: PayerInfo{Email: "p@example.com"}}).Validate())
	assert.Error(t, (&CreatePaymentRequest{PlanType: "guide", PayerInfo: PayerInfo{Email: "p@example.com"}, Amount: &neg}).Validate())
	assert.Error(t, (&CreatePaymentRequest{PlanType: "guide", PayerInfo: PayerInfo{Email: "p@example.com"}, Currency: "euro"}).Validate())
}

func TestAdminPaymentRequestsValidate(t *testing.T) {
	assert.Error(t, (&ActivatePaymentRequest{}).Validate())
	assert.NoError(t, (&ActivatePaymentRequest{Amount: decimal.NewFromInt(900)}).Validate())

	assert.Error(t, (&RejectPaymentRequest{Reason: "   "}).Validate())
	assert.NoError(t, (&RejectPaymentRequest{Reason: "declined"}).Validate())

	demote := &DemotePaymentRequest{Status: "Rejected", Reason: "fraud"}
	require.NoError(t, demote.Validate())
	assert.Equal(t, paymentmodels.StatusRejected, demote.parsedStatus)
	assert.Error(t, (&DemotePaymentRequest{Status: "paid", Reason: "x"}).Validate())
	assert.Error(t, (&DemotePaymentRequest{Status: "cancelled"}).Validate())
}

func TestWebhookAndRedeemRequestsValidate(t *testing.T) {
	hook := &PaymentWebhookRequest{GatewayEventID: " evt ", PaymentReference: "cs", Status: " SUCCEEDED "}
	require.NoError(t, hook.Validate())
	assert.Equal(t, "evt", hook.GatewayEventID)
	assert.Equal(t, "succeeded", hook.Status)
	assert.Error(t, (&PaymentWebhookRequest{PaymentReference: "cs", Status: "failed"}).Validate())
	assert.Error(t, (&PaymentWebhookRequest{GatewayEventID: "evt", Status: "failed"}).Validate())

	redeem := &RedeemTokenRequest{Token: "tok", AccountID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}
	require.NoError(t, redeem.Validate())
	assert.False(t, redeem.parsedAccountID.IsNil())
	assert.Error(t, (&RedeemTokenRequest{Token: "", AccountID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}).Validate())
	assert.Error(t, (&RedeemTokenRequest{Token: strings.Repeat("t", maxTokenLength+1), AccountID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}).Validate())
	assert.Error(t, (&RedeemTokenRequest{Token: "tok"}).Validate())
}
