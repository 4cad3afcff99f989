package auth

import (
	"context"
	"testing"
	"time"

	"github.com/clavehr/identity/pkg/iam"
)

func TestMemoryStateManager_IssueAndConsume(t *testing.T) {
	m := NewMemoryStateManager(time.Minute)

	state, err := m.Issue(context.Background(), iam.OAuthProviderGoogle, "https://app.example.com/cb")
	if err != nil {
		t.Fatal(err)
	}

	payload, err := m.Consume(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if payload.Provider != iam.OAuthProviderGoogle {
		t.Errorf("provider: got %s", payload.Provider)
	}
	if payload.RedirectURI != "https://app.example.com/cb" {
		t.Errorf("redirect uri: got %s", payload.RedirectURI)
	}
}

func TestMemoryStateManager_SingleUse(t *testing.T) {
	m := NewMemoryStateManager(time.Minute)

	state, err := m.Issue(context.Background(), iam.OAuthProviderGoogle, "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Consume(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Consume(context.Background(), state); err == nil {
		t.Fatal("replayed state must be rejected")
	}
}

func TestMemoryStateManager_UnknownState(t *testing.T) {
	m := NewMemoryStateManager(time.Minute)

	if _, err := m.Consume(context.Background(), "never-issued"); err == nil {
		t.Fatal("unknown state must be rejected")
	}
}

func TestMemoryStateManager_Expiry(t *testing.T) {
	m := NewMemoryStateManager(time.Nanosecond)

	state, err := m.Issue(context.Background(), iam.OAuthProviderLinkedIn, "")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(time.Millisecond)
	if _, err := m.Consume(context.Background(), state); err == nil {
		t.Fatal("expired state must be rejected")
	}
}
