package authinfra

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "oauth:state:"

// RedisStateManager implements auth.StateManager on Redis so an OAuth callback
// can land on any instance behind the load balancer. States are keyed with a
// TTL and deleted on consumption.
type RedisStateManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateManager creates the Redis-backed state manager.
func NewRedisStateManager(client *redis.Client, ttl time.Duration) *RedisStateManager {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStateManager{client: client, ttl: ttl}
}

func (m *RedisStateManager) Issue(ctx context.Context, provider iam.OAuthProvider, redirectURI string) (string, error) {
	state, err := auth.NewRawToken()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(auth.StatePayload{
		Provider:    provider,
		RedirectURI: redirectURI,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return "", errx.Wrap(err, "failed to marshal oauth state", errx.TypeInternal)
	}

	if err := m.client.Set(ctx, stateKeyPrefix+state, payload, m.ttl).Err(); err != nil {
		return "", errx.Wrap(err, "failed to store oauth state", errx.TypeInternal)
	}
	return state, nil
}

func (m *RedisStateManager) Consume(ctx context.Context, state string) (*auth.StatePayload, error) {
	// GETDEL makes consumption single-use even across concurrent callbacks.
	raw, err := m.client.GetDel(ctx, stateKeyPrefix+state).Result()
	if err == redis.Nil {
		return nil, auth.ErrInvalidState()
	}
	if err != nil {
		return nil, errx.Wrap(err, "failed to consume oauth state", errx.TypeInternal)
	}

	var payload auth.StatePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, errx.Wrap(err, "failed to unmarshal oauth state", errx.TypeInternal)
	}
	return &payload, nil
}
