package auth

import (
	"testing"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/kernel"
)

func newTestService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService("test-secret", "test-issuer", time.Hour, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func TestNewJWTService_EmptySecretRefused(t *testing.T) {
	if _, err := NewJWTService("", "issuer", time.Hour, time.Hour); err == nil {
		t.Fatal("expected construction to fail with empty secret")
	}
}

func TestAccessToken_Roundtrip(t *testing.T) {
	svc := newTestService(t)

	orgID := kernel.NewOrgID("org-1")
	in := TokenClaims{
		UserID:         "user-1",
		Email:          "jane@example.com",
		Role:           "hr_manager",
		Roles:          []string{"employee", "hr_manager"},
		OrganizationID: &orgID,
		Status:         "active",
	}

	token, err := svc.GenerateAccessToken(in)
	if err != nil {
		t.Fatal(err)
	}

	out, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if out.UserID != in.UserID {
		t.Errorf("user id: got %s, want %s", out.UserID, in.UserID)
	}
	if out.Email != in.Email {
		t.Errorf("email: got %s, want %s", out.Email, in.Email)
	}
	if out.Role != "hr_manager" {
		t.Errorf("role: got %s", out.Role)
	}
	if len(out.Roles) != 2 {
		t.Errorf("roles: got %v", out.Roles)
	}
	if out.OrganizationID == nil || *out.OrganizationID != orgID {
		t.Errorf("organization id: got %v", out.OrganizationID)
	}
	if out.Status != "active" {
		t.Errorf("status: got %s", out.Status)
	}
	if out.TokenType != TokenTypeAccess {
		t.Errorf("type: got %s", out.TokenType)
	}
}

func TestRefreshTokenRejectedAsAccessToken(t *testing.T) {
	svc := newTestService(t)

	refresh, err := svc.GenerateRefreshToken("user-1")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.ValidateAccessToken(refresh)
	if err == nil {
		t.Fatal("refresh token must not validate as access token")
	}
	if !errx.Is(err, ErrWrongTokenType()) {
		t.Fatalf("expected wrong-token-type, got %v", err)
	}
}

func TestAccessTokenRejectedAsRefreshToken(t *testing.T) {
	svc := newTestService(t)

	access, err := svc.GenerateAccessToken(TokenClaims{UserID: "user-1"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ValidateRefreshToken(access); !errx.Is(err, ErrWrongTokenType()) {
		t.Fatalf("expected wrong-token-type, got %v", err)
	}
}

func TestValidateRefreshToken_ReturnsSubject(t *testing.T) {
	svc := newTestService(t)

	refresh, err := svc.GenerateRefreshToken("user-42")
	if err != nil {
		t.Fatal(err)
	}

	userID, err := svc.ValidateRefreshToken(refresh)
	if err != nil {
		t.Fatal(err)
	}
	if userID != "user-42" {
		t.Fatalf("subject: got %s", userID)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc, err := NewJWTService("test-secret", "test-issuer", -time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	token, err := svc.GenerateAccessToken(TokenClaims{UserID: "user-1"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ValidateAccessToken(token); !errx.Is(err, ErrExpiredToken()) {
		t.Fatalf("expected expired-token, got %v", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.GenerateAccessToken(TokenClaims{UserID: "user-1"})
	if err != nil {
		t.Fatal(err)
	}

	tampered := token[:len(token)-4] + "0000"
	if _, err := svc.ValidateAccessToken(tampered); !errx.Is(err, ErrInvalidToken()) {
		t.Fatalf("expected invalid-token, got %v", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	issuing := newTestService(t)
	verifying, err := NewJWTService("other-secret", "test-issuer", time.Hour, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	token, err := issuing.GenerateAccessToken(TokenClaims{UserID: "user-1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifying.ValidateAccessToken(token); err == nil {
		t.Fatal("token signed with another secret must not validate")
	}
}

func TestHashToken_StableAndDistinct(t *testing.T) {
	a := HashToken("raw-one")
	if a != HashToken("raw-one") {
		t.Fatal("hash must be deterministic")
	}
	if a == HashToken("raw-two") {
		t.Fatal("distinct inputs must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 length 64, got %d", len(a))
	}
}
