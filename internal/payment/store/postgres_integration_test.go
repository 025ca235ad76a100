//go:build integration

package store_test

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
	"castline/internal/payment/store"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
	"castline/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "subjects", "payments")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) create(plan models.PlanType, amount string) *models.Payment {
	p, err := models.NewPayment(id.NewPaymentID(), plan, decimal.RequireFromString(amount), "usd",
		"payer@example.com", "Pat", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), p))
	return p
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	p := s.create(models.PlanGold, "199.99")

	found, err := s.store.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
	s.True(decimal.RequireFromString("199.99").Equal(found.Amount))
	s.Empty(found.RegistrationToken)
	s.Nil(found.AccountID)

	_, err = s.store.FindByID(ctx, id.NewPaymentID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTransitionGuard() {
	ctx := context.Background()
	p := s.create(models.PlanMaster, "0")

	t, err := models.Resolve(p.PlanType, models.Event{Kind: models.EventGatewaySucceeded})
	s.Require().NoError(err)
	current, changed, err := s.store.Transition(ctx, p.ID, t, models.TransitionUpdate{At: time.Now()})
	s.Require().NoError(err)
	s.False(changed)
	s.Equal(models.StatusPendingNegotiation, current.Status)

	amount := decimal.NewFromInt(2500)
	t, err = models.Resolve(p.PlanType, models.Event{Kind: models.EventAdminActivated, Amount: amount})
	s.Require().NoError(err)
	updated, changed, err := s.store.Transition(ctx, p.ID, t, models.TransitionUpdate{Amount: &amount, Reason: "negotiated", At: time.Now()})
	s.Require().NoError(err)
	s.True(changed)
	s.Equal(models.StatusActive, updated.Status)
	s.Equal("negotiated", updated.StatusReason)
	s.Equal(models.EventAdminActivated, updated.StatusEvent)
	s.True(amount.Equal(updated.Amount))

	found, err := s.store.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.EventAdminActivated, found.StatusEvent)
}

func (s *PostgresStoreSuite) TestCheckoutLookup() {
	ctx := context.Background()
	p := s.create(models.PlanGuide, "50")
	t, err := models.Resolve(p.PlanType, models.Event{Kind: models.EventCheckoutCreated})
	s.Require().NoError(err)
	_, changed, err := s.store.Transition(ctx, p.ID, t, models.TransitionUpdate{
		Checkout: &models.CheckoutRecord{SessionID: "cs_test_1"},
		At:       time.Now(),
	})
	s.Require().NoError(err)
	s.True(changed)

	found, err := s.store.FindByGatewaySession(ctx, "cs_test_1")
	s.Require().NoError(err)
	s.Equal(p.ID, found.ID)
	s.Empty(found.GatewayCustomerID)
}

// TestConcurrentRedeem verifies that racing redemptions of one token bind
// exactly one account.
func (s *PostgresStoreSuite) TestConcurrentRedeem() {
	ctx := context.Background()
	p := s.create(models.PlanGuide, "50")
	t, err := models.Resolve(p.PlanType, models.Event{Kind: models.EventGatewaySucceeded})
	s.Require().NoError(err)
	_, _, err = s.store.Transition(ctx, p.ID, t, models.TransitionUpdate{At: time.Now()})
	s.Require().NoError(err)

	expires := time.Now().Add(time.Hour)
	_, changed, err := s.store.IssueToken(ctx, p.ID, models.TokenGrant{Token: "tok-" + uuid.NewString(), IssuedAt: time.Now(), ExpiresAt: &expires})
	s.Require().NoError(err)
	s.Require().True(changed)
	issued, err := s.store.FindByID(ctx, p.ID)
	s.Require().NoError(err)

	const goroutines = 50
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		errs      atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := s.store.RedeemToken(ctx, models.Redemption{
				Token:     issued.RegistrationToken,
				AccountID: id.AccountID(uuid.New()),
				At:        time.Now(),
			})
			if err != nil {
				errs.Add(1)
				return
			}
			if changed {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(0), errs.Load())
	s.Equal(int32(1), successes.Load())
	final, err := s.store.FindByToken(ctx, issued.RegistrationToken)
	s.Require().NoError(err)
	s.True(final.RegistrationCompleted)
	s.NotNil(final.AccountID)
}
