package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/kernel"
)

// KeyPrefix is the fixed prefix of every issued key.
const KeyPrefix = "xapi-"

// keyPattern is the exact shape of a raw key: prefix plus 32 lowercase hex
// characters. Validated before any store access so malformed input never
// reaches the database.
var keyPattern = regexp.MustCompile(`^xapi-[a-f0-9]{32}$`)

// APIKey is a service credential owned by a principal. The raw key is shown
// exactly once at creation; only its SHA-256 hash is stored.
type APIKey struct {
	ID                 string        `db:"id" json:"id"`
	KeyHash            string        `db:"key_hash" json:"-"`
	KeyPrefix          string        `db:"key_prefix" json:"key_prefix"`
	OwnerID            kernel.UserID `db:"owner_id" json:"owner_id"`
	OrganizationID     *kernel.OrgID `db:"organization_id" json:"organization_id,omitempty"`
	Name               string        `db:"name" json:"name"`
	Description        string        `db:"description" json:"description,omitempty"`
	AllowedIPs         []string      `db:"-" json:"allowed_ips,omitempty"`
	RateLimitPerMinute int           `db:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	UsageCount         int64         `db:"usage_count" json:"usage_count"`
	LastUsedAt         *time.Time    `db:"last_used_at" json:"last_used_at,omitempty"`
	IsActive           bool          `db:"is_active" json:"is_active"`
	ExpiresAt          *time.Time    `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// IsExpired checks if the key has an expiry in the past.
func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// CanAuthenticate checks if the key may be used for authentication.
func (k *APIKey) CanAuthenticate() bool {
	return k.IsActive && !k.IsExpired()
}

// AllowsIP checks the client IP against the allow-list. An empty list means
// unrestricted; matching is literal, no CIDR.
func (k *APIKey) AllowsIP(ip string) bool {
	if len(k.AllowedIPs) == 0 {
		return true
	}
	for _, allowed := range k.AllowedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}

// GeneratedKey is a freshly minted raw key with its display prefix.
type GeneratedKey struct {
	Key       string
	KeyPrefix string
}

// GenerateAPIKey mints a raw key: the fixed prefix plus 16 random bytes hex
// encoded. KeyPrefix keeps the first characters for display in listings.
func GenerateAPIKey() (*GeneratedKey, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, errx.Wrap(err, "failed to generate API key", errx.TypeInternal)
	}
	key := KeyPrefix + hex.EncodeToString(buf)
	return &GeneratedKey{
		Key:       key,
		KeyPrefix: key[:len(KeyPrefix)+8],
	}, nil
}

// HashAPIKey returns the hex SHA-256 digest stored in place of the raw key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IsValidFormat checks a raw key against the exact key shape.
func IsValidFormat(raw string) bool {
	return keyPattern.MatchString(raw)
}

var ErrRegistry = errx.NewRegistry("APIKEY")

// Authentication failures share the uniform message; management failures are
// allowed to be specific because they require an authenticated owner already.
var (
	CodeInvalidKey   = ErrRegistry.Register("INVALID_KEY", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeKeyInactive  = ErrRegistry.Register("KEY_INACTIVE", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeKeyExpired   = ErrRegistry.Register("KEY_EXPIRED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeIPNotAllowed = ErrRegistry.Register("IP_NOT_ALLOWED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")

	CodeKeyNotFound      = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "API key not found")
	CodeDuplicateName    = ErrRegistry.Register("DUPLICATE_NAME", errx.TypeConflict, http.StatusConflict, "An API key with this name already exists")
	CodeKeyLimitExceeded = ErrRegistry.Register("LIMIT_EXCEEDED", errx.TypeConflict, http.StatusConflict, "Active API key limit reached")
	CodeRateLimited      = ErrRegistry.Register("RATE_LIMITED", errx.TypeRateLimit, http.StatusTooManyRequests, "Rate limit exceeded")
)

func ErrInvalidKey() *errx.Error       { return ErrRegistry.New(CodeInvalidKey) }
func ErrKeyInactive() *errx.Error      { return ErrRegistry.New(CodeKeyInactive) }
func ErrKeyExpired() *errx.Error       { return ErrRegistry.New(CodeKeyExpired) }
func ErrIPNotAllowed() *errx.Error     { return ErrRegistry.New(CodeIPNotAllowed) }
func ErrKeyNotFound() *errx.Error      { return ErrRegistry.New(CodeKeyNotFound) }
func ErrDuplicateName() *errx.Error    { return ErrRegistry.New(CodeDuplicateName) }
func ErrKeyLimitExceeded() *errx.Error { return ErrRegistry.New(CodeKeyLimitExceeded) }
func ErrRateLimited() *errx.Error      { return ErrRegistry.New(CodeRateLimited) }

// CreateAPIKeyRequest is the management input for minting a key.
type CreateAPIKeyRequest struct {
	Name               string        `json:"name"`
	Description        string        `json:"description,omitempty"`
	OrganizationID     *kernel.OrgID `json:"organization_id,omitempty"`
	AllowedIPs         []string      `json:"allowed_ips,omitempty"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute,omitempty"`
	ExpiresInDays      *int          `json:"expires_in_days,omitempty"`
}

// CreateAPIKeyResponse carries the raw key, once.
type CreateAPIKeyResponse struct {
	APIKey    APIKey `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Message   string `json:"message"`
}
