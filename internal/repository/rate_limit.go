package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chat_gateway/pkg/logger"
)

// RateLimitRepository maintains fixed-window counters keyed by an opaque
// string (the caller encodes user id and action kind into the key).
type RateLimitRepository interface {
	// Increment bumps the counter for key, starting a new window if none
	// is running, and returns the count within the current window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		r.log.Error("failed to increment rate limit counter", "error", err, "key", key)
		return 0, err
	}

	// First hit in the window owns the expiry.
	if count == 1 {
		r.redis.Expire(ctx, key, window)
	}

	return count, nil
}
