package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyRepository is the Redis fast-path for duplicate detection on the
// reward write path. It is advisory only: the unique index on
// applied_rewards.idempotency_key remains the durable guard, so a nil client
// (Redis disabled) degrades to database-only protection.
type IdempotencyRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewIdempotencyRepository constructs the repository.
func NewIdempotencyRepository(client *redis.Client, logger *zap.Logger) *IdempotencyRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdempotencyRepository{client: client, logger: logger}
}

// Acquire claims the key for the TTL. It returns false when another request
// already holds it. Redis errors are logged and treated as acquired: the
// database constraint catches what the fast path misses.
func (r *IdempotencyRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, idempotencyKey(key), "1", ttl).Result()
	if err != nil {
		r.logger.Warn("idempotency fast-path unavailable", zap.String("key", key), zap.Error(err))
		return true, nil
	}
	return ok, nil
}

// Release frees the key so a failed application can be retried immediately.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func idempotencyKey(key string) string {
	return "rewards:idem:" + key
}
