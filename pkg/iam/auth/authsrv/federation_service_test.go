package authsrv_test

import (
	"context"
	"testing"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/iam/auth/authsrv"
	"github.com/clavehr/identity/pkg/iam/rbac"
	"github.com/clavehr/identity/pkg/iam/user"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/google/uuid"
)

type federationHarness struct {
	service  *authsrv.FederationService
	provider *fakeProvider
	state    auth.StateManager
	users    *fakeUserRepo
	links    *fakeOAuthLinks
	audit    *fakeAudit
}

func newFederationHarness(t *testing.T, profile *auth.UserProfile) *federationHarness {
	t.Helper()
	tokens, err := auth.NewJWTService("test-secret", "test-issuer", time.Hour, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	h := &federationHarness{
		provider: &fakeProvider{name: iam.OAuthProviderGoogle, profile: profile},
		state:    auth.NewMemoryStateManager(time.Minute),
		users:    newFakeUserRepo(),
		links:    newFakeOAuthLinks(),
		audit:    &fakeAudit{},
	}
	resolver := rbac.NewResolver(newFakeAssignments(), rbac.DefaultRoleTable())
	credentials := authsrv.NewCredentialService(tokens, newFakeTokenRepo(), h.users, resolver, h.audit)
	h.service = authsrv.NewFederationService(
		[]auth.ProviderClient{h.provider},
		h.state, h.users, h.links, credentials, h.audit,
	)
	return h
}

// begin runs the consent leg and returns the issued state.
func (h *federationHarness) begin(t *testing.T) string {
	t.Helper()
	if _, err := h.service.BeginFederation(context.Background(), iam.OAuthProviderGoogle, "https://app.example.com/cb"); err != nil {
		t.Fatal(err)
	}
	return h.provider.lastState
}

func googleProfile() *auth.UserProfile {
	return &auth.UserProfile{
		Email:       "Jane.Doe@Example.com",
		FirstName:   "Jane",
		LastName:    "Doe",
		DisplayName: "Jane Doe",
		PictureURL:  "https://img.example.com/jane.png",
		Raw:         map[string]any{"id": "g-1"},
	}
}

func TestCompleteFederation_CreatesPrincipalAndLink(t *testing.T) {
	h := newFederationHarness(t, googleProfile())
	state := h.begin(t)

	creds, err := h.service.CompleteFederation(context.Background(), iam.OAuthProviderGoogle, "code", state, "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		t.Fatal("credentials must be issued")
	}

	u, err := h.users.FindByEmail(context.Background(), "jane.doe@example.com")
	if err != nil {
		t.Fatal("principal must be created under the normalized address")
	}
	if u.Status != user.StatusActive || u.FirstName != "Jane" {
		t.Errorf("principal: %+v", u)
	}

	link, err := h.links.FindByProviderEmail(context.Background(), "google", "jane.doe@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if link == nil {
		t.Fatal("oauth link must be upserted")
	}
	if link.UserID != u.ID {
		t.Errorf("link user: got %s", link.UserID)
	}

	if h.audit.created != 1 || h.audit.linked != 1 || h.audit.successfulLogins() != 1 {
		t.Errorf("audit: created=%d linked=%d logins=%d", h.audit.created, h.audit.linked, h.audit.successfulLogins())
	}
}

func TestCompleteFederation_ExistingUserBackfilled(t *testing.T) {
	h := newFederationHarness(t, googleProfile())
	existing := user.User{
		ID:     kernel.NewUserID(uuid.NewString()),
		Email:  "jane.doe@example.com",
		Status: user.StatusActive,
	}
	h.users.add(existing)
	state := h.begin(t)

	if _, err := h.service.CompleteFederation(context.Background(), iam.OAuthProviderGoogle, "code", state, ""); err != nil {
		t.Fatal(err)
	}

	u, err := h.users.FindByID(context.Background(), existing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.FirstName != "Jane" || u.PictureURL == "" {
		t.Errorf("empty profile fields must be backfilled: %+v", u)
	}
	if h.users.count() != 1 {
		t.Fatal("no second principal may be created")
	}
	if h.audit.created != 0 {
		t.Errorf("account-created audit events: got %d", h.audit.created)
	}
}

func TestCompleteFederation_DoesNotOverwriteProfile(t *testing.T) {
	h := newFederationHarness(t, googleProfile())
	existing := user.User{
		ID:        kernel.NewUserID(uuid.NewString()),
		Email:     "jane.doe@example.com",
		FirstName: "Janet",
		Status:    user.StatusActive,
	}
	h.users.add(existing)
	state := h.begin(t)

	if _, err := h.service.CompleteFederation(context.Background(), iam.OAuthProviderGoogle, "code", state, ""); err != nil {
		t.Fatal(err)
	}

	u, err := h.users.FindByID(context.Background(), existing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.FirstName != "Janet" {
		t.Errorf("existing fields must not be overwritten, got %s", u.FirstName)
	}
}

func TestCompleteFederation_MissingEmailIsTerminal(t *testing.T) {
	profile := googleProfile()
	profile.Email = "  "
	h := newFederationHarness(t, profile)
	state := h.begin(t)

	_, err := h.service.CompleteFederation(context.Background(), iam.OAuthProviderGoogle, "code", state, "")
	if !errx.Is(err, auth.ErrMissingEmail()) {
		t.Fatalf("expected missing-email, got %v", err)
	}
	if h.users.count() != 0 || h.links.count() != 0 {
		t.Fatal("nothing may be persisted without an email")
	}
	if len(h.audit.logins) != 0 {
		t.Fatal("no login attempt may be audited")
	}
}

func TestCompleteFederation_ReplayedStateRejected(t *testing.T) {
	h := newFederationHarness(t, googleProfile())
	state := h.begin(t)

	if _, err := h.service.CompleteFederation(context.Background(), iam.OAuthProviderGoogle, "code", state, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.service.CompleteFederation(context.Background(), iam.OAuthProviderGoogle, "code", state, ""); !errx.Is(err, auth.ErrInvalidState()) {
		t.Fatalf("expected invalid-state on replay, got %v", err)
	}
}

func TestCompleteFederation_ProviderMismatchRejected(t *testing.T) {
	profile := googleProfile()
	h := newFederationHarness(t, profile)

	// State was issued for another provider's flow.
	state, err := h.state.Issue(context.Background(), iam.OAuthProviderLinkedIn, "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.service.CompleteFederation(context.Background(), iam.OAuthProviderGoogle, "code", state, ""); !errx.Is(err, auth.ErrInvalidState()) {
		t.Fatalf("expected invalid-state on provider mismatch, got %v", err)
	}
}

func TestBeginFederation_UnknownProviderRejected(t *testing.T) {
	h := newFederationHarness(t, googleProfile())

	if _, err := h.service.BeginFederation(context.Background(), iam.OAuthProvider("github"), ""); !errx.Is(err, auth.ErrProviderNotConfigured()) {
		t.Fatalf("expected provider-not-configured, got %v", err)
	}
	if _, err := h.service.BeginFederation(context.Background(), iam.OAuthProviderMicrosoft, ""); !errx.Is(err, auth.ErrProviderNotConfigured()) {
		t.Fatalf("expected provider-not-configured for unregistered provider, got %v", err)
	}
}
