package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "castline/pkg/domain"
)

const webhookKeyPrefix = "castline:webhook:"

// RedisStore keeps the ledger as SETNX keys that expire after ttl. Gateways
// stop retrying long before the keys lapse.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, webhookKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Record(ctx context.Context, eventID string, paymentID id.PaymentID, _ time.Time) (bool, error) {
	ok, err := s.client.SetNX(ctx, webhookKeyPrefix+eventID, paymentID.String(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return ok, nil
}
