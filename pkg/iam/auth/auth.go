package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/kernel"
)

// Token type discriminators carried in the "type" claim. A refresh token
// presented where an access token is expected (or the reverse) is rejected.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// RefreshToken is the stored half of an issued refresh credential. Only the
// SHA-256 hash of the raw value is persisted; the raw token leaves the service
// exactly once, in the issue response.
type RefreshToken struct {
	ID             string        `db:"id" json:"id"`
	TokenHash      string        `db:"token_hash" json:"-"`
	UserID         kernel.UserID `db:"user_id" json:"user_id"`
	OrganizationID *kernel.OrgID `db:"organization_id" json:"organization_id,omitempty"`
	ExpiresAt      time.Time     `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	IsRevoked      bool          `db:"is_revoked" json:"is_revoked"`
}

// IsExpired checks if the refresh token has expired.
func (r *RefreshToken) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// IsValid checks if the refresh token is still usable.
func (r *RefreshToken) IsValid() bool {
	return !r.IsRevoked && !r.IsExpired()
}

// MagicLinkToken is a single-use passwordless login token, stored hashed like
// refresh tokens. Used flips exactly once: consumption is a conditional update
// so concurrent verifications of the same link cannot both succeed.
type MagicLinkToken struct {
	ID          string        `db:"id" json:"id"`
	TokenHash   string        `db:"token_hash" json:"-"`
	UserID      kernel.UserID `db:"user_id" json:"user_id"`
	Email       string        `db:"email" json:"email"`
	RedirectURI string        `db:"redirect_uri" json:"redirect_uri,omitempty"`
	ExpiresAt   time.Time     `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	Used        bool          `db:"used" json:"used"`
	UsedAt      *time.Time    `db:"used_at" json:"used_at,omitempty"`
}

// IsExpired checks if the link has expired.
func (m *MagicLinkToken) IsExpired() bool {
	return time.Now().After(m.ExpiresAt)
}

// IsValid checks if the link can still be consumed.
func (m *MagicLinkToken) IsValid() bool {
	return !m.Used && !m.IsExpired()
}

// TokenClaims is the decoded, verified content of an access token. Role data
// is a snapshot taken at issuance.
type TokenClaims struct {
	UserID         kernel.UserID `json:"sub"`
	Email          string        `json:"email"`
	Role           string        `json:"role"`
	Roles          []string      `json:"roles"`
	OrganizationID *kernel.OrgID `json:"organization_id,omitempty"`
	Status         string        `json:"status"`
	TokenType      string        `json:"type"`
	IssuedAt       time.Time     `json:"iat"`
	ExpiresAt      time.Time     `json:"exp"`
}

// Credentials is the issued token pair returned to callers.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// NewRawToken returns 32 bytes of hex-encoded randomness for refresh and
// magic-link tokens.
func NewRawToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errx.Wrap(err, "failed to generate token", errx.TypeInternal)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest stored in place of raw token values.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

var ErrRegistry = errx.NewRegistry("AUTH")

// Every credential-validation failure carries the same outward message and
// status. Which one actually happened (bad signature, expiry, wrong type,
// revoked, unknown or spent link) is visible in logs through the code, never
// to the caller.
var (
	CodeInvalidToken   = ErrRegistry.Register("INVALID_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeExpiredToken   = ErrRegistry.Register("EXPIRED_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeWrongTokenType = ErrRegistry.Register("WRONG_TOKEN_TYPE", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeTokenRevoked   = ErrRegistry.Register("TOKEN_REVOKED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeLinkNotFound   = ErrRegistry.Register("LINK_NOT_FOUND", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeLinkUsed       = ErrRegistry.Register("LINK_USED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeLinkExpired    = ErrRegistry.Register("LINK_EXPIRED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")

	CodeInvalidState          = ErrRegistry.Register("INVALID_STATE", errx.TypeValidation, http.StatusBadRequest, "Invalid OAuth state")
	CodeProviderNotConfigured = ErrRegistry.Register("PROVIDER_NOT_CONFIGURED", errx.TypeValidation, http.StatusBadRequest, "OAuth provider is not configured")
	CodeMissingEmail          = ErrRegistry.Register("MISSING_EMAIL", errx.TypeValidation, http.StatusBadRequest, "Identity provider returned no email address")
	CodeExchangeFailed        = ErrRegistry.Register("EXCHANGE_FAILED", errx.TypeExternal, http.StatusBadGateway, "OAuth code exchange failed")
	CodeProfileFetchFailed    = ErrRegistry.Register("PROFILE_FETCH_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to fetch provider profile")

	CodeTokenGenerationFailed = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
	CodeMissingSigningKey     = ErrRegistry.Register("MISSING_SIGNING_KEY", errx.TypeInternal, http.StatusInternalServerError, "Signing key is not configured")
)

func ErrInvalidToken() *errx.Error          { return ErrRegistry.New(CodeInvalidToken) }
func ErrExpiredToken() *errx.Error          { return ErrRegistry.New(CodeExpiredToken) }
func ErrWrongTokenType() *errx.Error        { return ErrRegistry.New(CodeWrongTokenType) }
func ErrTokenRevoked() *errx.Error          { return ErrRegistry.New(CodeTokenRevoked) }
func ErrLinkNotFound() *errx.Error          { return ErrRegistry.New(CodeLinkNotFound) }
func ErrLinkUsed() *errx.Error              { return ErrRegistry.New(CodeLinkUsed) }
func ErrLinkExpired() *errx.Error           { return ErrRegistry.New(CodeLinkExpired) }
func ErrInvalidState() *errx.Error          { return ErrRegistry.New(CodeInvalidState) }
func ErrProviderNotConfigured() *errx.Error { return ErrRegistry.New(CodeProviderNotConfigured) }
func ErrMissingEmail() *errx.Error          { return ErrRegistry.New(CodeMissingEmail) }
func ErrExchangeFailed() *errx.Error        { return ErrRegistry.New(CodeExchangeFailed) }
func ErrProfileFetchFailed() *errx.Error    { return ErrRegistry.New(CodeProfileFetchFailed) }
func ErrTokenGenerationFailed() *errx.Error { return ErrRegistry.New(CodeTokenGenerationFailed) }
func ErrMissingSigningKey() *errx.Error     { return ErrRegistry.New(CodeMissingSigningKey) }
