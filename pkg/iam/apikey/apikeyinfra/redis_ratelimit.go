package apikeyinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/clavehr/identity/pkg/logx"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter implements apikey.RateLimiter with a fixed one-minute
// window per key: INCR on a per-minute bucket, EXPIRE on first hit. On Redis
// failure it fails open; availability of the API beats strict limiting.
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter creates the limiter.
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, keyID string, limitPerMinute int) (bool, error) {
	if limitPerMinute <= 0 {
		return true, nil
	}

	bucket := fmt.Sprintf("ratelimit:apikey:%s:%d", keyID, time.Now().Unix()/60)

	count, err := l.client.Incr(ctx, bucket).Result()
	if err != nil {
		logx.WithError(err).WithField("api_key_id", keyID).Warn("rate limiter unavailable, admitting request")
		return true, nil
	}
	if count == 1 {
		// Two minutes covers clock skew across instances at window edges.
		if err := l.client.Expire(ctx, bucket, 2*time.Minute).Err(); err != nil {
			logx.WithError(err).Warn("failed to set rate limit bucket expiry")
		}
	}
	return count <= int64(limitPerMinute), nil
}
