package apikey

import (
	"context"

	"github.com/clavehr/identity/pkg/kernel"
)

// APIKeyRepository is the persistence contract for API keys. Lookups for
// authentication key on the SHA-256 hash.
type APIKeyRepository interface {
	// Save inserts the key, enforcing the per-owner active-key cap in the same
	// statement: when the owner already holds maxActive live keys the insert is
	// a no-op and ErrKeyLimitExceeded comes back, so two concurrent creations
	// cannot both slip past the cap.
	Save(ctx context.Context, key APIKey, maxActive int) error
	FindByID(ctx context.Context, id string) (*APIKey, error)
	FindByHash(ctx context.Context, keyHash string) (*APIKey, error)
	FindByOwner(ctx context.Context, ownerID kernel.UserID) ([]*APIKey, error)

	// NameExists backs the per-owner unique name rule.
	NameExists(ctx context.Context, ownerID kernel.UserID, name string) (bool, error)

	Deactivate(ctx context.Context, id string, ownerID kernel.UserID) error
	Delete(ctx context.Context, id string, ownerID kernel.UserID) error

	// RecordUsage bumps the usage counter and last-used timestamp. Callers
	// treat failure as non-fatal.
	RecordUsage(ctx context.Context, id string) error
}

// RateLimiter admits or rejects one request against a per-key per-minute
// budget. It is an admission collaborator for the HTTP layer, not part of
// authentication.
type RateLimiter interface {
	Allow(ctx context.Context, keyID string, limitPerMinute int) (bool, error)
}
