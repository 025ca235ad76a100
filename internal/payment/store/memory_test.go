package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"castline/internal/payment/models"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
)

type PaymentStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func (s *PaymentStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Now()
}

func TestPaymentStoreSuite(t *testing.T) {
	suite.Run(t, new(PaymentStoreSuite))
}

func (s *PaymentStoreSuite) newPayment(plan models.PlanType, amount int64) *models.Payment {
	p, err := models.NewPayment(id.NewPaymentID(), plan, decimal.NewFromInt(amount), "usd", "payer@example.com", "Pat", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, p))
	return p
}

func (s *PaymentStoreSuite) succeed(p *models.Payment) *models.Payment {
	t, err := models.Resolve(p.PlanType, models.Event{Kind: models.EventGatewaySucceeded})
	s.Require().NoError(err)
	updated, changed, err := s.store.Transition(s.ctx, p.ID, t, models.TransitionUpdate{At: s.now})
	s.Require().NoError(err)
	s.Require().True(changed)
	return updated
}

func (s *PaymentStoreSuite) TestTransition() {
	s.Run("checkout records gateway identifiers", func() {
		p := s.newPayment(models.PlanGuide, 50)
		t, err := models.Resolve(p.PlanType, models.Event{Kind: models.EventCheckoutCreated})
		s.Require().NoError(err)

		updated, changed, err := s.store.Transition(s.ctx, p.ID, t, models.TransitionUpdate{
			Checkout: &models.CheckoutRecord{SessionID: "cs_1", CustomerID: "cus_1"},
			At:       s.now,
		})
		s.Require().NoError(err)
		s.True(changed)
		s.Equal("cs_1", updated.GatewaySessionID)

		found, err := s.store.FindByGatewaySession(s.ctx, "cs_1")
		s.Require().NoError(err)
		s.Equal(p.ID, found.ID)
	})

	s.Run("replayed success leaves the record alone", func() {
		p := s.newPayment(models.PlanGold, 200)
		s.Equal(models.StatusPaid, s.succeed(p).Status)

		t, err := models.Resolve(p.PlanType, models.Event{Kind: models.EventGatewaySucceeded})
		s.Require().NoError(err)
		current, changed, err := s.store.Transition(s.ctx, p.ID, t, models.TransitionUpdate{At: s.now})
		s.Require().NoError(err)
		s.False(changed)
		s.Equal(models.StatusPaid, current.Status)
	})

	s.Run("activation replaces the amount", func() {
		p := s.newPayment(models.PlanMaster, 0)
		amount := decimal.NewFromInt(1500)
		t, err := models.Resolve(p.PlanType, models.Event{Kind: models.EventAdminActivated, Amount: amount})
		s.Require().NoError(err)

		updated, changed, err := s.store.Transition(s.ctx, p.ID, t, models.TransitionUpdate{Amount: &amount, At: s.now})
		s.Require().NoError(err)
		s.True(changed)
		s.Equal(models.StatusActive, updated.Status)
		s.Equal(models.EventAdminActivated, updated.StatusEvent)
		s.True(amount.Equal(updated.Amount))
	})

	s.Run("unknown payment", func() {
		_, _, err := s.store.Transition(s.ctx, id.NewPaymentID(), models.Transition{}, models.TransitionUpdate{})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PaymentStoreSuite) TestTokens() {
	s.Run("issues once", func() {
		p := s.succeed(s.newPayment(models.PlanGuide, 50))

		issued, changed, err := s.store.IssueToken(s.ctx, p.ID, models.TokenGrant{Token: "tok-a", IssuedAt: s.now})
		s.Require().NoError(err)
		s.True(changed)
		s.Equal("tok-a", issued.RegistrationToken)

		again, changed, err := s.store.IssueToken(s.ctx, p.ID, models.TokenGrant{Token: "tok-b", IssuedAt: s.now})
		s.Require().NoError(err)
		s.False(changed)
		s.Equal("tok-a", again.RegistrationToken)
	})

	s.Run("refuses pending payments", func() {
		p := s.newPayment(models.PlanGuide, 50)
		current, changed, err := s.store.IssueToken(s.ctx, p.ID, models.TokenGrant{Token: "tok-c", IssuedAt: s.now})
		s.Require().NoError(err)
		s.False(changed)
		s.Empty(current.RegistrationToken)
	})

	s.Run("redeems once and binds the first account", func() {
		p := s.succeed(s.newPayment(models.PlanGold, 200))
		_, _, err := s.store.IssueToken(s.ctx, p.ID, models.TokenGrant{Token: "tok-d", IssuedAt: s.now})
		s.Require().NoError(err)

		first := id.AccountID(uuid.New())
		redeemed, changed, err := s.store.RedeemToken(s.ctx, models.Redemption{Token: "tok-d", AccountID: first, At: s.now})
		s.Require().NoError(err)
		s.True(changed)
		s.True(redeemed.RedeemedBy(first))

		current, changed, err := s.store.RedeemToken(s.ctx, models.Redemption{Token: "tok-d", AccountID: id.AccountID(uuid.New()), At: s.now})
		s.Require().NoError(err)
		s.False(changed)
		s.True(current.RedeemedBy(first))

		listed, err := s.store.ListByAccount(s.ctx, first)
		s.Require().NoError(err)
		s.Len(listed, 1)
	})

	s.Run("expired tokens are not redeemed", func() {
		p := s.succeed(s.newPayment(models.PlanGuide, 50))
		expires := s.now.Add(time.Hour)
		_, _, err := s.store.IssueToken(s.ctx, p.ID, models.TokenGrant{Token: "tok-e", IssuedAt: s.now, ExpiresAt: &expires})
		s.Require().NoError(err)

		_, changed, err := s.store.RedeemToken(s.ctx, models.Redemption{Token: "tok-e", AccountID: id.AccountID(uuid.New()), At: expires})
		s.Require().NoError(err)
		s.False(changed)
	})

	s.Run("unknown token", func() {
		_, _, err := s.store.RedeemToken(s.ctx, models.Redemption{Token: "missing", At: s.now})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PaymentStoreSuite) TestConcurrentRedeem() {
	p := s.succeed(s.newPayment(models.PlanGuide, 50))
	_, _, err := s.store.IssueToken(s.ctx, p.ID, models.TokenGrant{Token: "tok-race", IssuedAt: s.now})
	s.Require().NoError(err)

	const goroutines = 50
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := s.store.RedeemToken(s.ctx, models.Redemption{
				Token:     "tok-race",
				AccountID: id.AccountID(uuid.New()),
				At:        time.Now(),
			})
			if err == nil && changed {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
}
