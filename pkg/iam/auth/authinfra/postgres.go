package authinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// PostgresTokenRepository is the PostgreSQL implementation of
// auth.TokenRepository over the refresh_tokens table.
type PostgresTokenRepository struct {
	db *sqlx.DB
}

// NewPostgresTokenRepository creates the repository.
func NewPostgresTokenRepository(db *sqlx.DB) auth.TokenRepository {
	return &PostgresTokenRepository{db: db}
}

func (r *PostgresTokenRepository) SaveRefreshToken(ctx context.Context, token auth.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, token_hash, user_id, organization_id, expires_at, created_at, is_revoked)
		VALUES (:id, :token_hash, :user_id, :organization_id, :expires_at, :created_at, :is_revoked)`

	if _, err := r.db.NamedExecContext(ctx, query, toRefreshPersistence(token)); err != nil {
		return errx.Wrap(err, "failed to save refresh token", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresTokenRepository) FindRefreshTokenByHash(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	var p refreshTokenPersistence
	query := `SELECT * FROM refresh_tokens WHERE token_hash = $1`
	if err := r.db.GetContext(ctx, &p, query, hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find refresh token", errx.TypeInternal)
	}
	token := p.toDomain()
	return &token, nil
}

// RevokeRefreshToken is idempotent: revoking an unknown or already-revoked
// token is a no-op success, so logout never fails on a stale client.
func (r *PostgresTokenRepository) RevokeRefreshToken(ctx context.Context, hash string) error {
	query := `UPDATE refresh_tokens SET is_revoked = true WHERE token_hash = $1 AND is_revoked = false`
	if _, err := r.db.ExecContext(ctx, query, hash); err != nil {
		return errx.Wrap(err, "failed to revoke refresh token", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresTokenRepository) RevokeAllUserTokens(ctx context.Context, userID kernel.UserID) error {
	query := `UPDATE refresh_tokens SET is_revoked = true WHERE user_id = $1 AND is_revoked = false`
	if _, err := r.db.ExecContext(ctx, query, userID.String()); err != nil {
		return errx.Wrap(err, "failed to revoke user tokens", errx.TypeInternal).
			WithDetail("user_id", userID.String())
	}
	return nil
}

func (r *PostgresTokenRepository) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < NOW() OR is_revoked = true`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired refresh tokens", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to get rows affected on token cleanup", errx.TypeInternal)
	}
	return rows, nil
}

type refreshTokenPersistence struct {
	ID             string         `db:"id"`
	TokenHash      string         `db:"token_hash"`
	UserID         string         `db:"user_id"`
	OrganizationID sql.NullString `db:"organization_id"`
	ExpiresAt      time.Time      `db:"expires_at"`
	CreatedAt      time.Time      `db:"created_at"`
	IsRevoked      bool           `db:"is_revoked"`
}

func toRefreshPersistence(t auth.RefreshToken) refreshTokenPersistence {
	p := refreshTokenPersistence{
		ID:        t.ID,
		TokenHash: t.TokenHash,
		UserID:    t.UserID.String(),
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
		IsRevoked: t.IsRevoked,
	}
	if t.OrganizationID != nil {
		p.OrganizationID = sql.NullString{String: t.OrganizationID.String(), Valid: true}
	}
	return p
}

func (p refreshTokenPersistence) toDomain() auth.RefreshToken {
	var orgID *kernel.OrgID
	if p.OrganizationID.Valid {
		id := kernel.NewOrgID(p.OrganizationID.String)
		orgID = &id
	}
	return auth.RefreshToken{
		ID:             p.ID,
		TokenHash:      p.TokenHash,
		UserID:         kernel.NewUserID(p.UserID),
		OrganizationID: orgID,
		ExpiresAt:      p.ExpiresAt,
		CreatedAt:      p.CreatedAt,
		IsRevoked:      p.IsRevoked,
	}
}

// PostgresMagicLinkRepository is the PostgreSQL implementation of
// auth.MagicLinkRepository over the magic_link_tokens table.
type PostgresMagicLinkRepository struct {
	db *sqlx.DB
}

// NewPostgresMagicLinkRepository creates the repository.
func NewPostgresMagicLinkRepository(db *sqlx.DB) auth.MagicLinkRepository {
	return &PostgresMagicLinkRepository{db: db}
}

func (r *PostgresMagicLinkRepository) SaveToken(ctx context.Context, token auth.MagicLinkToken) error {
	query := `
		INSERT INTO magic_link_tokens (id, token_hash, user_id, email, redirect_uri, expires_at, created_at, used)
		VALUES (:id, :token_hash, :user_id, :email, :redirect_uri, :expires_at, :created_at, :used)`

	if _, err := r.db.NamedExecContext(ctx, query, toMagicLinkPersistence(token)); err != nil {
		return errx.Wrap(err, "failed to save magic link token", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresMagicLinkRepository) FindByHash(ctx context.Context, hash string) (*auth.MagicLinkToken, error) {
	var p magicLinkPersistence
	query := `SELECT * FROM magic_link_tokens WHERE token_hash = $1`
	if err := r.db.GetContext(ctx, &p, query, hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find magic link token", errx.TypeInternal)
	}
	token := p.toDomain()
	return &token, nil
}

// Consume flips used in one conditional statement. The WHERE clause is the
// race arbiter: with two concurrent calls the row matches exactly once.
func (r *PostgresMagicLinkRepository) Consume(ctx context.Context, hash string) error {
	query := `UPDATE magic_link_tokens SET used = true, used_at = NOW() WHERE token_hash = $1 AND used = false`
	result, err := r.db.ExecContext(ctx, query, hash)
	if err != nil {
		return errx.Wrap(err, "failed to consume magic link token", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on consume", errx.TypeInternal)
	}
	if rows == 0 {
		return auth.ErrLinkUsed()
	}
	return nil
}

func (r *PostgresMagicLinkRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM magic_link_tokens WHERE expires_at < NOW() OR used = true`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired magic link tokens", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to get rows affected on magic link cleanup", errx.TypeInternal)
	}
	return rows, nil
}

type magicLinkPersistence struct {
	ID          string       `db:"id"`
	TokenHash   string       `db:"token_hash"`
	UserID      string       `db:"user_id"`
	Email       string       `db:"email"`
	RedirectURI string       `db:"redirect_uri"`
	ExpiresAt   time.Time    `db:"expires_at"`
	CreatedAt   time.Time    `db:"created_at"`
	Used        bool         `db:"used"`
	UsedAt      sql.NullTime `db:"used_at"`
}

func toMagicLinkPersistence(t auth.MagicLinkToken) magicLinkPersistence {
	p := magicLinkPersistence{
		ID:          t.ID,
		TokenHash:   t.TokenHash,
		UserID:      t.UserID.String(),
		Email:       t.Email,
		RedirectURI: t.RedirectURI,
		ExpiresAt:   t.ExpiresAt,
		CreatedAt:   t.CreatedAt,
		Used:        t.Used,
	}
	if t.UsedAt != nil {
		p.UsedAt = sql.NullTime{Time: *t.UsedAt, Valid: true}
	}
	return p
}

func (p magicLinkPersistence) toDomain() auth.MagicLinkToken {
	var usedAt *time.Time
	if p.UsedAt.Valid {
		t := p.UsedAt.Time
		usedAt = &t
	}
	return auth.MagicLinkToken{
		ID:          p.ID,
		TokenHash:   p.TokenHash,
		UserID:      kernel.NewUserID(p.UserID),
		Email:       p.Email,
		RedirectURI: p.RedirectURI,
		ExpiresAt:   p.ExpiresAt,
		CreatedAt:   p.CreatedAt,
		Used:        p.Used,
		UsedAt:      usedAt,
	}
}
