package authsrv

import (
	"context"
	"strings"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/iam/user"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/clavehr/identity/pkg/logx"
	"github.com/google/uuid"
)

// FederationService runs the OAuth login flow: consent URL, callback
// completion, principal resolution and credential issuance.
type FederationService struct {
	providers   map[iam.OAuthProvider]auth.ProviderClient
	state       auth.StateManager
	users       user.UserRepository
	links       user.OAuthLinkRepository
	credentials *CredentialService
	audit       auth.AuditService
}

// NewFederationService wires the federation service over the registered
// provider clients.
func NewFederationService(
	providers []auth.ProviderClient,
	state auth.StateManager,
	users user.UserRepository,
	links user.OAuthLinkRepository,
	credentials *CredentialService,
	audit auth.AuditService,
) *FederationService {
	byName := make(map[iam.OAuthProvider]auth.ProviderClient, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &FederationService{
		providers:   byName,
		state:       state,
		users:       users,
		links:       links,
		credentials: credentials,
		audit:       audit,
	}
}

// BeginFederation issues a CSRF state and returns the provider consent URL.
func (s *FederationService) BeginFederation(ctx context.Context, provider iam.OAuthProvider, redirectURI string) (string, error) {
	client, err := s.provider(provider)
	if err != nil {
		return "", err
	}

	state, err := s.state.Issue(ctx, provider, redirectURI)
	if err != nil {
		return "", err
	}
	return client.AuthorizationURL(state, redirectURI)
}

// CompleteFederation finishes the callback leg: state, code exchange, profile
// fetch, principal resolution, link upsert, credentials. Nothing is persisted
// before the profile fetch succeeds, so a failing provider leaves no trace.
func (s *FederationService) CompleteFederation(ctx context.Context, provider iam.OAuthProvider, code, state, ip string) (*auth.Credentials, error) {
	client, err := s.provider(provider)
	if err != nil {
		return nil, err
	}

	payload, err := s.state.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	if payload.Provider != provider {
		return nil, auth.ErrInvalidState().WithDetail("reason", "provider mismatch")
	}

	accessToken, err := client.ExchangeCode(ctx, code, payload.RedirectURI)
	if err != nil {
		return nil, err
	}
	profile, err := client.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(profile.Email) == "" {
		// Terminal: without an email there is no principal to resolve.
		return nil, auth.ErrMissingEmail().WithDetail("provider", string(provider))
	}

	u, created, err := s.resolvePrincipal(ctx, profile)
	if err != nil {
		return nil, err
	}
	if created {
		s.audit.LogAccountCreated(ctx, u.ID, string(provider), ip)
	}

	now := time.Now()
	link := user.OAuthLink{
		ID:            uuid.NewString(),
		UserID:        u.ID,
		Provider:      string(provider),
		ProviderEmail: strings.ToLower(profile.Email),
		AccessToken:   accessToken,
		Profile:       profile.Raw,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.links.Upsert(ctx, link); err != nil {
		return nil, errx.Wrap(err, "failed to upsert oauth link", errx.TypeInternal)
	}
	s.audit.LogAccountLinked(ctx, u.ID, string(provider), ip)

	creds, err := s.credentials.IssueCredentials(ctx, u)
	if err != nil {
		s.audit.LogLoginAttempt(ctx, u.ID, string(provider), false, ip)
		return nil, err
	}
	s.audit.LogLoginAttempt(ctx, u.ID, string(provider), true, ip)
	return creds, nil
}

// Providers lists the configured provider names, for discovery endpoints.
func (s *FederationService) Providers() []iam.OAuthProvider {
	names := make([]iam.OAuthProvider, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

func (s *FederationService) provider(name iam.OAuthProvider) (auth.ProviderClient, error) {
	if !name.IsValid() {
		return nil, auth.ErrProviderNotConfigured().WithDetail("provider", string(name))
	}
	client, ok := s.providers[name]
	if !ok {
		return nil, auth.ErrProviderNotConfigured().WithDetail("provider", string(name))
	}
	return client, nil
}

// resolvePrincipal finds the user owning the profile email, creating an active
// principal on first federation.
func (s *FederationService) resolvePrincipal(ctx context.Context, profile *auth.UserProfile) (*user.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		if updated := fillMissingProfile(existing, profile); updated {
			if err := s.users.Update(ctx, *existing); err != nil {
				logx.WithError(err).WithField("user_id", existing.ID.String()).Warn("failed to backfill user profile")
			}
		}
		return existing, false, nil
	}
	if !errx.Is(err, user.ErrUserNotFound()) {
		return nil, false, err
	}

	now := time.Now()
	created := user.User{
		ID:          kernel.NewUserID(uuid.NewString()),
		Email:       email,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		DisplayName: profile.DisplayName,
		PictureURL:  profile.PictureURL,
		Status:      user.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, created); err != nil {
		if errx.Is(err, user.ErrEmailTaken()) {
			u, ferr := s.users.FindByEmail(ctx, email)
			return u, false, ferr
		}
		return nil, false, err
	}
	return &created, true, nil
}

// fillMissingProfile backfills empty name and picture fields from the provider
// profile without overwriting anything the user already has.
func fillMissingProfile(u *user.User, profile *auth.UserProfile) bool {
	updated := false
	if u.FirstName == "" && profile.FirstName != "" {
		u.FirstName = profile.FirstName
		updated = true
	}
	if u.LastName == "" && profile.LastName != "" {
		u.LastName = profile.LastName
		updated = true
	}
	if u.DisplayName == "" && profile.DisplayName != "" {
		u.DisplayName = profile.DisplayName
		updated = true
	}
	if u.PictureURL == "" && profile.PictureURL != "" {
		u.PictureURL = profile.PictureURL
		updated = true
	}
	return updated
}
