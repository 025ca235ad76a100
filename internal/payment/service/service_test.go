package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"castline/internal/payment/gateway"
	gwmocks "castline/internal/payment/gateway/mocks"
	"castline/internal/payment/models"
	"castline/internal/payment/service/mocks"
	"castline/internal/payment/store"
	"castline/internal/platform/metrics"
	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
	"castline/pkg/requestcontext"
)

// =============================================================================
// Payment Service Test Suite
// =============================================================================
// The gateway is mocked; the canonical transition table is exercised
// end-to-end against the in-memory store.

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	gateway  *gwmocks.MockGateway
	payments *store.InMemory
	metrics  *metrics.Metrics
	service  *Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.gateway = gwmocks.NewMockGateway(s.ctrl)
	auditor := mocks.NewMockAuditPublisher(s.ctrl)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.payments = store.NewInMemory()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC))

	var err error
	s.service, err = New(s.payments, s.gateway,
		Prices{Currency: "usd", Guide: decimal.NewFromInt(50), Gold: decimal.NewFromInt(200)},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditPublisher(auditor),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) expectCheckout(session string) {
	s.gateway.EXPECT().CreateCheckout(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
			return &gateway.CheckoutSession{SessionID: session, CustomerID: "cus_1", URL: "https://pay.example/" + req.PaymentID.String()}, nil
		})
}

func (s *ServiceSuite) create(plan models.PlanType, amount *decimal.Decimal) *Intent {
	intent, err := s.service.Create(s.ctx, CreateRequest{PlanType: plan, Amount: amount, PayerEmail: "payer@example.com"})
	s.Require().NoError(err)
	return intent
}

func amountOf(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func (s *ServiceSuite) TestNew() {
	_, err := New(nil, s.gateway, Prices{})
	s.Require().Error(err)
	_, err = New(s.payments, nil, Prices{})
	s.Require().Error(err)
}

func (s *ServiceSuite) TestCreate() {
	s.Run("guide uses list price and opens checkout", func() {
		s.expectCheckout("cs_guide")
		intent := s.create(models.PlanGuide, nil)
		s.True(intent.Payment.Amount.Equal(decimal.NewFromInt(50)))
		s.Equal(models.StatusPending, intent.Payment.Status)
		s.Equal("cs_guide", intent.Payment.GatewaySessionID)
		s.Equal("cus_1", intent.Payment.GatewayCustomerID)
		s.Contains(intent.CheckoutURL, intent.Payment.ID.String())
	})

	s.Run("master without amount bypasses checkout", func() {
		intent := s.create(models.PlanMaster, nil)
		s.Equal(models.StatusPendingNegotiation, intent.Payment.Status)
		s.Empty(intent.CheckoutURL)
	})

	s.Run("master with amount goes through checkout", func() {
		s.expectCheckout("cs_master")
		intent := s.create(models.PlanMaster, amountOf(900))
		s.Equal(models.StatusPending, intent.Payment.Status)
		s.NotEmpty(intent.CheckoutURL)
	})

	s.Run("gateway failure cancels the payment", func() {
		s.gateway.EXPECT().CreateCheckout(gomock.Any(), gomock.Any()).Return(nil, gateway.ErrProviderDown)
		_, err := s.service.Create(s.ctx, CreateRequest{PlanType: models.PlanGold, PayerEmail: "payer@example.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeGateway))
		s.True(errors.Is(err, gateway.ErrProviderDown))
	})

	s.Run("invalid payer", func() {
		_, err := s.service.Create(s.ctx, CreateRequest{PlanType: models.PlanGuide, PayerEmail: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestIdempotentGatewaySuccess() {
	s.expectCheckout("cs_1")
	intent := s.create(models.PlanGuide, amountOf(50))

	payment, err := s.service.Find(s.ctx, "cs_1")
	s.Require().NoError(err)

	first, err := s.service.ApplyGatewayOutcome(s.ctx, payment, models.EventGatewaySucceeded)
	s.Require().NoError(err)
	s.True(first.Applied)
	s.Equal(models.StatusSucceeded, first.Payment.Status)

	second, err := s.service.ApplyGatewayOutcome(s.ctx, payment, models.EventGatewaySucceeded)
	s.Require().NoError(err)
	s.False(second.Applied)
	s.Equal(models.StatusSucceeded, second.Payment.Status)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues(machine, "pending", "succeeded")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.NoopTransitions.WithLabelValues(machine, string(models.EventGatewaySucceeded))))

	_, err = s.service.ApplyGatewayOutcome(s.ctx, first.Payment, models.EventGatewayFailed)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	byID, err := s.service.Find(s.ctx, intent.Payment.ID.String())
	s.Require().NoError(err)
	s.Equal(models.StatusSucceeded, byID.Status)
}

func (s *ServiceSuite) TestGatewayOutcomePerPlan() {
	s.expectCheckout("cs_gold")
	gold := s.create(models.PlanGold, nil)
	res, err := s.service.ApplyGatewayOutcome(s.ctx, gold.Payment, models.EventGatewaySucceeded)
	s.Require().NoError(err)
	s.Equal(models.StatusPaid, res.Payment.Status)

	s.expectCheckout("cs_master")
	master := s.create(models.PlanMaster, amountOf(700))
	res, err = s.service.ApplyGatewayOutcome(s.ctx, master.Payment, models.EventGatewaySucceeded)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, res.Payment.Status)

	s.expectCheckout("cs_expired")
	expired := s.create(models.PlanGuide, nil)
	res, err = s.service.ApplyGatewayOutcome(s.ctx, expired.Payment, models.EventGatewayExpired)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, res.Payment.Status)
}

func (s *ServiceSuite) TestMasterBypass() {
	intent := s.create(models.PlanMaster, nil)

	for _, kind := range []models.EventKind{models.EventGatewaySucceeded, models.EventGatewayFailed, models.EventGatewayExpired} {
		_, err := s.service.ApplyGatewayOutcome(s.ctx, intent.Payment, kind)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), string(kind))
	}
	stored, err := s.service.Get(s.ctx, intent.Payment.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingNegotiation, stored.Status)

	_, err = s.service.Activate(s.ctx, intent.Payment.ID, decimal.Zero, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	res, err := s.service.Activate(s.ctx, intent.Payment.ID, decimal.NewFromInt(1500), "annual contract")
	s.Require().NoError(err)
	s.True(res.Applied)
	s.Equal(models.StatusActive, res.Payment.Status)
	s.True(res.Payment.Amount.Equal(decimal.NewFromInt(1500)))

	res, err = s.service.Activate(s.ctx, intent.Payment.ID, decimal.NewFromInt(1500), "")
	s.Require().NoError(err)
	s.False(res.Applied)
}

func (s *ServiceSuite) TestGuideCannotBeActivated() {
	s.expectCheckout("cs_2")
	intent := s.create(models.PlanGuide, nil)
	_, err := s.service.Activate(s.ctx, intent.Payment.ID, decimal.NewFromInt(50), "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestRejectAndDemote() {
	s.Run("reject negotiated master", func() {
		intent := s.create(models.PlanMaster, nil)
		_, err := s.service.Reject(s.ctx, intent.Payment.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		res, err := s.service.Reject(s.ctx, intent.Payment.ID, "no agreement")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, res.Payment.Status)
		s.Equal("no agreement", res.Payment.StatusReason)
	})

	s.Run("demote a paid plan", func() {
		s.expectCheckout("cs_3")
		intent := s.create(models.PlanGold, nil)
		_, err := s.service.ApplyGatewayOutcome(s.ctx, intent.Payment, models.EventGatewaySucceeded)
		s.Require().NoError(err)

		_, err = s.service.Demote(s.ctx, intent.Payment.ID, models.StatusActive, "chargeback")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		res, err := s.service.Demote(s.ctx, intent.Payment.ID, models.StatusCancelled, "chargeback")
		s.Require().NoError(err)
		s.True(res.Applied)
		s.Equal(models.StatusCancelled, res.Payment.Status)
	})

	s.Run("demote a gateway-cancelled payment is invalid", func() {
		s.expectCheckout("cs_5")
		intent := s.create(models.PlanGold, nil)
		_, err := s.service.ApplyGatewayOutcome(s.ctx, intent.Payment, models.EventGatewayFailed)
		s.Require().NoError(err)

		_, err = s.service.Demote(s.ctx, intent.Payment.ID, models.StatusCancelled, "chargeback")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		res, err := s.service.ApplyGatewayOutcome(s.ctx, intent.Payment, models.EventGatewayExpired)
		s.Require().NoError(err)
		s.False(res.Applied)
	})

	s.Run("events after a demotion", func() {
		s.expectCheckout("cs_6")
		intent := s.create(models.PlanGuide, nil)
		_, err := s.service.ApplyGatewayOutcome(s.ctx, intent.Payment, models.EventGatewaySucceeded)
		s.Require().NoError(err)
		_, err = s.service.Demote(s.ctx, intent.Payment.ID, models.StatusRejected, "fraud")
		s.Require().NoError(err)

		_, err = s.service.Reject(s.ctx, intent.Payment.ID, "no agreement")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		res, err := s.service.Demote(s.ctx, intent.Payment.ID, models.StatusRejected, "fraud")
		s.Require().NoError(err)
		s.False(res.Applied)

		_, err = s.service.Demote(s.ctx, intent.Payment.ID, models.StatusCancelled, "fraud")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("a gateway failure after a demotion is invalid", func() {
		s.expectCheckout("cs_7")
		intent := s.create(models.PlanGold, nil)
		_, err := s.service.ApplyGatewayOutcome(s.ctx, intent.Payment, models.EventGatewaySucceeded)
		s.Require().NoError(err)
		_, err = s.service.Demote(s.ctx, intent.Payment.ID, models.StatusCancelled, "chargeback")
		s.Require().NoError(err)

		_, err = s.service.ApplyGatewayOutcome(s.ctx, intent.Payment, models.EventGatewayFailed)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("demote pending is invalid", func() {
		s.expectCheckout("cs_4")
		intent := s.create(models.PlanGuide, nil)
		_, err := s.service.Demote(s.ctx, intent.Payment.ID, models.StatusRejected, "fraud")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("unknown payment", func() {
		_, err := s.service.Demote(s.ctx, id.NewPaymentID(), models.StatusRejected, "fraud")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestFind() {
	_, err := s.service.Find(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Find(s.ctx, "cs_missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
