package auth

import (
	"context"
	"time"

	"github.com/clavehr/identity/pkg/iam"
	"github.com/clavehr/identity/pkg/kernel"
)

// TokenRepository defines the contract for refresh token persistence. Lookups
// and mutations key on the SHA-256 hash, never the raw value.
type TokenRepository interface {
	SaveRefreshToken(ctx context.Context, token RefreshToken) error
	FindRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// RevokeRefreshToken marks a token revoked. Revoking an unknown or
	// already-revoked token is not an error.
	RevokeRefreshToken(ctx context.Context, hash string) error
	RevokeAllUserTokens(ctx context.Context, userID kernel.UserID) error

	// DeleteExpiredTokens removes rows past expiry and returns how many went.
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

// MagicLinkRepository defines the contract for magic-link token persistence.
type MagicLinkRepository interface {
	SaveToken(ctx context.Context, token MagicLinkToken) error
	FindByHash(ctx context.Context, hash string) (*MagicLinkToken, error)

	// Consume atomically flips Used from false to true. It returns ErrLinkUsed
	// when the row exists but was already consumed, so that of two concurrent
	// verifications at most one succeeds.
	Consume(ctx context.Context, hash string) error

	// DeleteExpired removes used and expired rows and returns how many went.
	DeleteExpired(ctx context.Context) (int64, error)
}

// StatePayload is what an OAuth CSRF state resolves to when consumed.
type StatePayload struct {
	Provider    iam.OAuthProvider `json:"provider"`
	RedirectURI string            `json:"redirect_uri"`
	CreatedAt   time.Time         `json:"created_at"`
}

// StateManager issues and consumes single-use CSRF states for the OAuth flow.
type StateManager interface {
	Issue(ctx context.Context, provider iam.OAuthProvider, redirectURI string) (string, error)

	// Consume returns the payload and invalidates the state. Unknown, expired
	// and replayed states all return ErrInvalidState.
	Consume(ctx context.Context, state string) (*StatePayload, error)
}

// TokenService defines the contract for JWT minting and verification.
type TokenService interface {
	GenerateAccessToken(claims TokenClaims) (string, error)
	GenerateRefreshToken(userID kernel.UserID) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)

	// ValidateRefreshToken checks signature, expiry and the type discriminator
	// and returns the subject. Store-side checks (revocation) are the token
	// service's caller's job.
	ValidateRefreshToken(token string) (kernel.UserID, error)

	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

// UserProfile is a provider profile normalized to the fields the service
// persists. Raw keeps the untouched provider payload for the OAuth link.
type UserProfile struct {
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	DisplayName string         `json:"display_name"`
	PictureURL  string         `json:"picture_url"`
	Raw         map[string]any `json:"-"`
}

// ProviderClient is one federated identity provider. Implementations differ in
// endpoints, token-exchange request shape and profile field mapping; callers
// see none of that.
type ProviderClient interface {
	Name() iam.OAuthProvider

	// AuthorizationURL builds the provider consent URL. Returns
	// ErrProviderNotConfigured when credentials are absent.
	AuthorizationURL(state, redirectURI string) (string, error)

	// ExchangeCode trades the callback code for a provider access token.
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)

	// FetchProfile loads and normalizes the provider profile.
	FetchProfile(ctx context.Context, accessToken string) (*UserProfile, error)
}

// AuditService defines the contract for authentication audit logging. Audit
// writes are fire-and-forget; they never fail the operation being audited.
type AuditService interface {
	LogLoginAttempt(ctx context.Context, userID kernel.UserID, method string, success bool, ip string)
	LogTokenRefresh(ctx context.Context, userID kernel.UserID, ip string)
	LogLogout(ctx context.Context, userID kernel.UserID, ip string, everywhere bool)
	LogAccountCreated(ctx context.Context, userID kernel.UserID, method string, ip string)
	LogAccountLinked(ctx context.Context, userID kernel.UserID, provider string, ip string)
	LogMagicLinkRequested(ctx context.Context, email string, ip string)
}
