package authsrv

import (
	"context"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/iam/rbac"
	"github.com/clavehr/identity/pkg/iam/user"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/clavehr/identity/pkg/logx"
	"github.com/google/uuid"
)

// CredentialService issues, refreshes and revokes the access/refresh token
// pair. Every authentication method (OAuth, magic link, API key) funnels
// through IssueCredentials so claims always come out in the same shape.
type CredentialService struct {
	tokens   auth.TokenService
	repo     auth.TokenRepository
	users    user.UserRepository
	resolver *rbac.Resolver
	audit    auth.AuditService
}

// NewCredentialService wires the credential service.
func NewCredentialService(
	tokens auth.TokenService,
	repo auth.TokenRepository,
	users user.UserRepository,
	resolver *rbac.Resolver,
	audit auth.AuditService,
) *CredentialService {
	return &CredentialService{
		tokens:   tokens,
		repo:     repo,
		users:    users,
		resolver: resolver,
		audit:    audit,
	}
}

// IssueCredentials mints an access/refresh pair for an already-authenticated
// user and persists the hashed refresh token. The raw refresh value exists
// only in the returned Credentials.
func (s *CredentialService) IssueCredentials(ctx context.Context, u *user.User) (*auth.Credentials, error) {
	if err := checkUserStatus(u); err != nil {
		return nil, err
	}

	claims, err := s.BuildClaims(ctx, u)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(claims)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	row := auth.RefreshToken{
		ID:             uuid.NewString(),
		TokenHash:      auth.HashToken(refreshToken),
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		ExpiresAt:      now.Add(s.tokens.RefreshTokenTTL()),
		CreatedAt:      now,
	}
	if err := s.repo.SaveRefreshToken(ctx, row); err != nil {
		return nil, errx.Wrap(err, "failed to persist refresh token", errx.TypeInternal)
	}

	return &auth.Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}

// Refresh trades a valid refresh token for a new access token. The refresh
// token itself is not rotated; it stays live until expiry or revocation. Both
// the cryptographic check and the store check must pass.
func (s *CredentialService) Refresh(ctx context.Context, rawRefresh, ip string) (*auth.Credentials, error) {
	userID, err := s.tokens.ValidateRefreshToken(rawRefresh)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.FindRefreshTokenByHash(ctx, auth.HashToken(rawRefresh))
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, auth.ErrInvalidToken().WithDetail("reason", "unknown refresh token")
	}
	if stored.IsRevoked {
		return nil, auth.ErrTokenRevoked()
	}
	if stored.IsExpired() {
		return nil, auth.ErrExpiredToken()
	}
	if stored.UserID != userID {
		return nil, auth.ErrInvalidToken().WithDetail("reason", "subject mismatch")
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkUserStatus(u); err != nil {
		return nil, err
	}

	claims, err := s.BuildClaims(ctx, u)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.tokens.GenerateAccessToken(claims)
	if err != nil {
		return nil, err
	}

	s.audit.LogTokenRefresh(ctx, userID, ip)

	return &auth.Credentials{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}

// Revoke invalidates one refresh token. Revoking an unknown or already-revoked
// token succeeds: logout must be idempotent.
func (s *CredentialService) Revoke(ctx context.Context, rawRefresh string) error {
	return s.repo.RevokeRefreshToken(ctx, auth.HashToken(rawRefresh))
}

// RevokeAll invalidates every live refresh token of the user.
func (s *CredentialService) RevokeAll(ctx context.Context, userID kernel.UserID) error {
	return s.repo.RevokeAllUserTokens(ctx, userID)
}

// BuildClaims assembles the identity snapshot for a new access token from the
// user record and the current role assignments.
func (s *CredentialService) BuildClaims(ctx context.Context, u *user.User) (auth.TokenClaims, error) {
	primary, err := s.resolver.PrimaryRole(ctx, u.ID)
	if err != nil {
		return auth.TokenClaims{}, err
	}
	all, err := s.resolver.AllRoleNames(ctx, u.ID)
	if err != nil {
		return auth.TokenClaims{}, err
	}

	roles := make([]string, 0, len(all))
	for _, r := range all {
		roles = append(roles, string(r))
	}
	if len(roles) == 0 {
		roles = append(roles, string(rbac.RoleEmployee))
	}

	return auth.TokenClaims{
		UserID:         u.ID,
		Email:          u.Email,
		Role:           string(primary),
		Roles:          roles,
		OrganizationID: u.OrganizationID,
		Status:         string(u.Status),
	}, nil
}

func checkUserStatus(u *user.User) error {
	switch u.Status {
	case user.StatusActive:
		return nil
	case user.StatusSuspended:
		logx.WithField("user_id", u.ID.String()).Warn("suspended user attempted authentication")
		return user.ErrUserSuspended()
	default:
		return user.ErrUserInactive()
	}
}
