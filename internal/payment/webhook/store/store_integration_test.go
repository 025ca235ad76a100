//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"castline/internal/payment/webhook/store"
	id "castline/pkg/domain"
	"castline/pkg/testutil/containers"
)

type ledger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID string, paymentID id.PaymentID, at time.Time) (bool, error)
}

type LedgerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redis    *containers.RedisContainer
	ledgers  map[string]ledger
}

func TestLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redis = mgr.GetRedis(s.T())
	s.ledgers = map[string]ledger{
		"postgres": store.NewPostgres(s.postgres.DB),
		"redis":    store.NewRedis(s.redis.Client, time.Hour),
	}
}

func (s *LedgerSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "webhook_events"))
	s.Require().NoError(s.redis.FlushAll(ctx))
}

func (s *LedgerSuite) TestRecordOnce() {
	for name, l := range s.ledgers {
		s.Run(name, func() {
			ctx := context.Background()
			paymentID := id.NewPaymentID()

			seen, err := l.Seen(ctx, "evt_"+name)
			s.Require().NoError(err)
			s.False(seen)

			first, err := l.Record(ctx, "evt_"+name, paymentID, time.Now())
			s.Require().NoError(err)
			s.True(first)

			second, err := l.Record(ctx, "evt_"+name, paymentID, time.Now())
			s.Require().NoError(err)
			s.False(second)

			seen, err = l.Seen(ctx, "evt_"+name)
			s.Require().NoError(err)
			s.True(seen)
		})
	}
}
