package authsrv_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/iam/auth/authsrv"
	"github.com/clavehr/identity/pkg/iam/rbac"
	"github.com/clavehr/identity/pkg/iam/user"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/clavehr/identity/pkg/notifx"
	"github.com/google/uuid"
)

type magicLinkHarness struct {
	service *authsrv.MagicLinkService
	tokens  *auth.JWTService
	links   *fakeLinkRepo
	users   *fakeUserRepo
	sender  *capturingSender
	audit   *fakeAudit
}

func newMagicLinkHarness(t *testing.T) *magicLinkHarness {
	t.Helper()
	tokens, err := auth.NewJWTService("test-secret", "test-issuer", time.Hour, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	h := &magicLinkHarness{
		tokens: tokens,
		links:  newFakeLinkRepo(),
		users:  newFakeUserRepo(),
		sender: &capturingSender{},
		audit:  &fakeAudit{},
	}
	resolver := rbac.NewResolver(newFakeAssignments(), rbac.DefaultRoleTable())
	credentials := authsrv.NewCredentialService(tokens, newFakeTokenRepo(), h.users, resolver, h.audit)

	mailer := notifx.NewClient(h.sender)
	if err := mailer.RegisterTemplate(authsrv.MagicLinkTemplate, `<a href="{{.Link}}">Sign in</a>`); err != nil {
		t.Fatal(err)
	}

	h.service = authsrv.NewMagicLinkService(h.links, h.users, credentials, mailer, h.audit, authsrv.MagicLinkConfig{
		TTL:         30 * time.Minute,
		FrontendURL: "https://app.example.com",
		LinkPath:    "/auth/verify",
		FromAddress: "login@example.com",
		FromName:    "ClaveHR",
	})
	return h
}

// seedToken stores a link token directly and returns the raw value.
func (h *magicLinkHarness) seedToken(t *testing.T, u *user.User, expiresAt time.Time) string {
	t.Helper()
	raw, err := auth.NewRawToken()
	if err != nil {
		t.Fatal(err)
	}
	err = h.links.SaveToken(context.Background(), auth.MagicLinkToken{
		ID:        uuid.NewString(),
		TokenHash: auth.HashToken(raw),
		UserID:    u.ID,
		Email:     u.Email,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestRequestLink_CreatesActivePrincipal(t *testing.T) {
	h := newMagicLinkHarness(t)

	if err := h.service.RequestLink(context.Background(), "New.Person@Example.com", "", "10.0.0.1"); err != nil {
		t.Fatal(err)
	}

	u, err := h.users.FindByEmail(context.Background(), "new.person@example.com")
	if err != nil {
		t.Fatal("address must be normalized and a principal created")
	}
	if u.Status != user.StatusActive {
		t.Errorf("status: got %s", u.Status)
	}
	if h.sender.count() != 1 {
		t.Fatalf("expected one email, got %d", h.sender.count())
	}
	if h.audit.created != 1 {
		t.Errorf("account-created audit events: got %d", h.audit.created)
	}
	if h.audit.requested != 1 {
		t.Errorf("link-requested audit events: got %d", h.audit.requested)
	}
}

func TestRequestLink_ExistingUserReused(t *testing.T) {
	h := newMagicLinkHarness(t)
	h.users.add(user.User{ID: kernel.NewUserID(uuid.NewString()), Email: "jane@example.com", Status: user.StatusActive})

	if err := h.service.RequestLink(context.Background(), "jane@example.com", "", ""); err != nil {
		t.Fatal(err)
	}
	if h.users.count() != 1 {
		t.Fatalf("no new principal expected, got %d users", h.users.count())
	}
	if h.audit.created != 0 {
		t.Errorf("account-created audit events: got %d", h.audit.created)
	}
}

func TestRequestLink_InvalidAddressRejected(t *testing.T) {
	h := newMagicLinkHarness(t)

	for _, email := range []string{"", "   ", "not-an-address"} {
		if err := h.service.RequestLink(context.Background(), email, "", ""); err == nil {
			t.Errorf("address %q must be rejected", email)
		}
	}
	if h.users.count() != 0 {
		t.Fatal("no principal may be created for a rejected address")
	}
}

func TestRequestLink_EmailBodyCarriesLink(t *testing.T) {
	h := newMagicLinkHarness(t)

	if err := h.service.RequestLink(context.Background(), "jane@example.com", "https://app.example.com/dash", ""); err != nil {
		t.Fatal(err)
	}

	msg := h.sender.sent[0]
	if msg.To[0] != "jane@example.com" {
		t.Errorf("recipient: got %s", msg.To[0])
	}
	if !strings.Contains(msg.HTMLBody, "https://app.example.com/auth/verify?") {
		t.Errorf("body must carry the verification link: %s", msg.HTMLBody)
	}
	if !strings.Contains(msg.HTMLBody, "token=") {
		t.Errorf("link must carry the token: %s", msg.HTMLBody)
	}
}

func TestRequestLink_DeliveryFailureStillSucceeds(t *testing.T) {
	h := newMagicLinkHarness(t)
	h.sender.err = errx.New("smtp down", errx.TypeInternal)

	if err := h.service.RequestLink(context.Background(), "jane@example.com", "", ""); err != nil {
		t.Fatalf("delivery failure must not surface: %v", err)
	}
}

func TestVerify_IssuesCredentials(t *testing.T) {
	h := newMagicLinkHarness(t)
	u := &user.User{ID: kernel.NewUserID(uuid.NewString()), Email: "jane@example.com", Status: user.StatusActive}
	h.users.add(*u)
	raw := h.seedToken(t, u, time.Now().Add(30*time.Minute))

	creds, err := h.service.Verify(context.Background(), raw, "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := h.tokens.ValidateAccessToken(creds.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != u.ID {
		t.Errorf("subject: got %s", claims.UserID)
	}
	if h.audit.successfulLogins() != 1 {
		t.Errorf("successful logins: got %d", h.audit.successfulLogins())
	}
}

func TestVerify_SingleUse(t *testing.T) {
	h := newMagicLinkHarness(t)
	u := &user.User{ID: kernel.NewUserID(uuid.NewString()), Email: "jane@example.com", Status: user.StatusActive}
	h.users.add(*u)
	raw := h.seedToken(t, u, time.Now().Add(30*time.Minute))

	if _, err := h.service.Verify(context.Background(), raw, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.service.Verify(context.Background(), raw, ""); !errx.Is(err, auth.ErrLinkUsed()) {
		t.Fatalf("expected link-used, got %v", err)
	}
}

func TestVerify_ConcurrentVerificationsOneWinner(t *testing.T) {
	h := newMagicLinkHarness(t)
	u := &user.User{ID: kernel.NewUserID(uuid.NewString()), Email: "jane@example.com", Status: user.StatusActive}
	h.users.add(*u)
	raw := h.seedToken(t, u, time.Now().Add(30*time.Minute))

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.service.Verify(context.Background(), raw, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("exactly one verification may win, got %d", successes)
	}
}

func TestVerify_ExpiredLinkRejected(t *testing.T) {
	h := newMagicLinkHarness(t)
	u := &user.User{ID: kernel.NewUserID(uuid.NewString()), Email: "jane@example.com", Status: user.StatusActive}
	h.users.add(*u)
	raw := h.seedToken(t, u, time.Now().Add(-time.Minute))

	if _, err := h.service.Verify(context.Background(), raw, ""); !errx.Is(err, auth.ErrLinkExpired()) {
		t.Fatalf("expected link-expired, got %v", err)
	}
}

func TestVerify_UnknownTokenRejected(t *testing.T) {
	h := newMagicLinkHarness(t)

	if _, err := h.service.Verify(context.Background(), "never-issued", ""); !errx.Is(err, auth.ErrLinkNotFound()) {
		t.Fatalf("expected link-not-found, got %v", err)
	}
}

func TestVerify_SuspendedUserRefused(t *testing.T) {
	h := newMagicLinkHarness(t)
	u := &user.User{ID: kernel.NewUserID(uuid.NewString()), Email: "jane@example.com", Status: user.StatusSuspended}
	h.users.add(*u)
	raw := h.seedToken(t, u, time.Now().Add(30*time.Minute))

	if _, err := h.service.Verify(context.Background(), raw, ""); !errx.Is(err, user.ErrUserSuspended()) {
		t.Fatalf("expected suspended error, got %v", err)
	}
}
