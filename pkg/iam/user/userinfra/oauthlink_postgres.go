package userinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/user"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// PostgresOAuthLinkRepository is the PostgreSQL implementation of
// user.OAuthLinkRepository. The (provider, provider_email) pair is unique, so
// Upsert relies on ON CONFLICT to keep one link per provider per identity.
type PostgresOAuthLinkRepository struct {
	db *sqlx.DB
}

// NewPostgresOAuthLinkRepository creates the repository.
func NewPostgresOAuthLinkRepository(db *sqlx.DB) user.OAuthLinkRepository {
	return &PostgresOAuthLinkRepository{db: db}
}

func (r *PostgresOAuthLinkRepository) Upsert(ctx context.Context, link user.OAuthLink) error {
	query := `
		INSERT INTO oauth_links (
			id, user_id, provider, provider_email, access_token, profile,
			created_at, updated_at
		) VALUES (
			:id, :user_id, :provider, :provider_email, :access_token, :profile,
			:created_at, :updated_at
		)
		ON CONFLICT (provider, provider_email) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			access_token = EXCLUDED.access_token,
			profile = EXCLUDED.profile,
			updated_at = EXCLUDED.updated_at`

	p, err := toLinkPersistence(link)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return errx.Wrap(err, "failed to upsert oauth link", errx.TypeInternal).
			WithDetail("provider", link.Provider)
	}
	return nil
}

func (r *PostgresOAuthLinkRepository) FindByProviderEmail(ctx context.Context, provider, providerEmail string) (*user.OAuthLink, error) {
	var p linkPersistence
	query := `SELECT * FROM oauth_links WHERE provider = $1 AND provider_email = $2`
	if err := r.db.GetContext(ctx, &p, query, provider, providerEmail); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find oauth link", errx.TypeInternal)
	}
	return toLinkDomain(p)
}

func (r *PostgresOAuthLinkRepository) FindByUser(ctx context.Context, userID kernel.UserID) ([]*user.OAuthLink, error) {
	var rows []linkPersistence
	query := `SELECT * FROM oauth_links WHERE user_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &rows, query, userID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to find oauth links by user", errx.TypeInternal)
	}
	links := make([]*user.OAuthLink, 0, len(rows))
	for _, p := range rows {
		link, err := toLinkDomain(p)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

type linkPersistence struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	Provider      string    `db:"provider"`
	ProviderEmail string    `db:"provider_email"`
	AccessToken   string    `db:"access_token"`
	Profile       []byte    `db:"profile"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func toLinkPersistence(link user.OAuthLink) (linkPersistence, error) {
	profile, err := json.Marshal(link.Profile)
	if err != nil {
		return linkPersistence{}, errx.Wrap(err, "failed to encode link profile", errx.TypeInternal)
	}
	return linkPersistence{
		ID:            link.ID,
		UserID:        link.UserID.String(),
		Provider:      link.Provider,
		ProviderEmail: link.ProviderEmail,
		AccessToken:   link.AccessToken,
		Profile:       profile,
		CreatedAt:     link.CreatedAt,
		UpdatedAt:     link.UpdatedAt,
	}, nil
}

func toLinkDomain(p linkPersistence) (*user.OAuthLink, error) {
	var profile map[string]any
	if len(p.Profile) > 0 {
		if err := json.Unmarshal(p.Profile, &profile); err != nil {
			return nil, errx.Wrap(err, "failed to decode link profile", errx.TypeInternal)
		}
	}
	return &user.OAuthLink{
		ID:            p.ID,
		UserID:        kernel.NewUserID(p.UserID),
		Provider:      p.Provider,
		ProviderEmail: p.ProviderEmail,
		AccessToken:   p.AccessToken,
		Profile:       profile,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}
