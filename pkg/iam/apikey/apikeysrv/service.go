package apikeysrv

import (
	"context"
	"strings"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/apikey"
	"github.com/clavehr/identity/pkg/iam/rbac"
	"github.com/clavehr/identity/pkg/iam/user"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/clavehr/identity/pkg/logx"
	"github.com/google/uuid"
)

// APIKeyService manages key lifecycle and authenticates presented keys. It
// implements auth.APIKeyAuthenticator for the HTTP middleware.
type APIKeyService struct {
	repo        apikey.APIKeyRepository
	users       user.UserRepository
	resolver    *rbac.Resolver
	maxPerOwner int
}

// NewAPIKeyService wires the API key service.
func NewAPIKeyService(
	repo apikey.APIKeyRepository,
	users user.UserRepository,
	resolver *rbac.Resolver,
	maxPerOwner int,
) *APIKeyService {
	if maxPerOwner == 0 {
		maxPerOwner = 5
	}
	return &APIKeyService{
		repo:        repo,
		users:       users,
		resolver:    resolver,
		maxPerOwner: maxPerOwner,
	}
}

// CreateAPIKey mints a key for the owner. The raw secret appears only in the
// response; after that the service knows the hash alone.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, ownerID kernel.UserID, req apikey.CreateAPIKeyRequest) (*apikey.CreateAPIKeyResponse, error) {
	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !owner.IsActive() {
		return nil, user.ErrUserInactive()
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errx.New("API key name is required", errx.TypeValidation)
	}
	taken, err := s.repo.NameExists(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apikey.ErrDuplicateName().WithDetail("name", name)
	}

	generated, err := apikey.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if req.ExpiresInDays != nil && *req.ExpiresInDays > 0 {
		expiry := time.Now().UTC().AddDate(0, 0, *req.ExpiresInDays)
		expiresAt = &expiry
	}

	orgID := req.OrganizationID
	if orgID == nil {
		orgID = owner.OrganizationID
	}

	now := time.Now().UTC()
	newKey := apikey.APIKey{
		ID:                 uuid.NewString(),
		KeyHash:            apikey.HashAPIKey(generated.Key),
		KeyPrefix:          generated.KeyPrefix,
		OwnerID:            ownerID,
		OrganizationID:     orgID,
		Name:               name,
		Description:        req.Description,
		AllowedIPs:         req.AllowedIPs,
		RateLimitPerMinute: req.RateLimitPerMinute,
		IsActive:           true,
		ExpiresAt:          expiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	// The cap is enforced inside the insert so concurrent creations cannot
	// both slip past a pre-check.
	if err := s.repo.Save(ctx, newKey, s.maxPerOwner); err != nil {
		if errx.Is(err, apikey.ErrKeyLimitExceeded()) || errx.Is(err, apikey.ErrDuplicateName()) {
			return nil, err
		}
		return nil, errx.Wrap(err, "failed to save API key", errx.TypeInternal)
	}

	return &apikey.CreateAPIKeyResponse{
		APIKey:    newKey,
		SecretKey: generated.Key,
		Message:   "Save this key securely. It will not be shown again.",
	}, nil
}

// ListAPIKeys returns the owner's keys, raw secrets excluded by type.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, ownerID kernel.UserID) ([]*apikey.APIKey, error) {
	return s.repo.FindByOwner(ctx, ownerID)
}

// GetAPIKey returns one key, owner-scoped.
func (s *APIKeyService) GetAPIKey(ctx context.Context, id string, ownerID kernel.UserID) (*apikey.APIKey, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if key == nil || key.OwnerID != ownerID {
		return nil, apikey.ErrKeyNotFound()
	}
	return key, nil
}

// DeactivateAPIKey turns a key off without deleting its usage history.
func (s *APIKeyService) DeactivateAPIKey(ctx context.Context, id string, ownerID kernel.UserID) error {
	return s.repo.Deactivate(ctx, id, ownerID)
}

// DeleteAPIKey removes a key permanently.
func (s *APIKeyService) DeleteAPIKey(ctx context.Context, id string, ownerID kernel.UserID) error {
	return s.repo.Delete(ctx, id, ownerID)
}

// Authenticate verifies a presented raw key and returns the owner's
// AuthContext, with the same role snapshot shape every other credential
// produces. Checks run cheapest first; the format check keeps malformed input
// away from the store entirely.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey, clientIP string) (*kernel.AuthContext, error) {
	if !apikey.IsValidFormat(rawKey) {
		return nil, apikey.ErrInvalidKey()
	}

	key, err := s.repo.FindByHash(ctx, apikey.HashAPIKey(rawKey))
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, apikey.ErrInvalidKey()
	}
	if !key.IsActive {
		return nil, apikey.ErrKeyInactive()
	}
	if key.IsExpired() {
		return nil, apikey.ErrKeyExpired()
	}
	if !key.AllowsIP(clientIP) {
		logx.WithFields(logx.Fields{
			"api_key_id": key.ID,
			"ip":         clientIP,
		}).Warn("API key presented from disallowed IP")
		return nil, apikey.ErrIPNotAllowed()
	}

	owner, err := s.users.FindByID(ctx, key.OwnerID)
	if err != nil {
		return nil, err
	}
	if !owner.IsActive() {
		return nil, apikey.ErrKeyInactive().WithDetail("reason", "owner inactive")
	}

	primary, err := s.resolver.PrimaryRole(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	all, err := s.resolver.AllRoleNames(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(all))
	for _, r := range all {
		roles = append(roles, string(r))
	}
	if len(roles) == 0 {
		roles = append(roles, string(rbac.RoleEmployee))
	}

	// Usage tracking is best-effort: a failed counter update must never fail
	// an otherwise valid authentication.
	go func(id string) {
		bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.RecordUsage(bg, id); err != nil {
			logx.WithError(err).WithField("api_key_id", id).Warn("failed to record API key usage")
		}
	}(key.ID)

	return &kernel.AuthContext{
		UserID:         owner.ID,
		OrganizationID: key.OrganizationID,
		Email:          owner.Email,
		Role:           string(primary),
		Roles:          roles,
		Status:         string(owner.Status),
		IsAPIKey:       true,
		APIKeyID:       key.ID,
	}, nil
}
