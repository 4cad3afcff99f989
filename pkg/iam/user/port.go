package user

import (
	"context"

	"github.com/clavehr/identity/pkg/kernel"
)

// UserRepository is the persistence contract for principals.
type UserRepository interface {
	FindByID(ctx context.Context, id kernel.UserID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u User) error
	Update(ctx context.Context, u User) error
}

// OAuthLinkRepository is the persistence contract for federated identity links.
type OAuthLinkRepository interface {
	// Upsert creates or replaces the link identified by (provider, provider_email).
	Upsert(ctx context.Context, link OAuthLink) error
	FindByProviderEmail(ctx context.Context, provider, providerEmail string) (*OAuthLink, error)
	FindByUser(ctx context.Context, userID kernel.UserID) ([]*OAuthLink, error)
}
