package apikeyinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/apikey"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresAPIKeyRepository is the PostgreSQL implementation of
// apikey.APIKeyRepository over the api_keys table.
type PostgresAPIKeyRepository struct {
	db *sqlx.DB
}

// NewPostgresAPIKeyRepository creates the repository.
func NewPostgresAPIKeyRepository(db *sqlx.DB) apikey.APIKeyRepository {
	return &PostgresAPIKeyRepository{db: db}
}

// Save inserts the key behind a guard subquery so the per-owner active-key cap
// holds under concurrent creations: the row only lands when the owner's live
// key count is still below the cap at insert time.
func (r *PostgresAPIKeyRepository) Save(ctx context.Context, key apikey.APIKey, maxActive int) error {
	query := `
		INSERT INTO api_keys (
			id, key_hash, key_prefix, owner_id, organization_id, name, description,
			allowed_ips, rate_limit_per_minute, usage_count, is_active, expires_at,
			created_at, updated_at
		)
		SELECT
			:id, :key_hash, :key_prefix, :owner_id, :organization_id, :name, :description,
			:allowed_ips, :rate_limit_per_minute, :usage_count, :is_active, :expires_at,
			:created_at, :updated_at
		WHERE (
			SELECT COUNT(*) FROM api_keys
			WHERE owner_id = :owner_id AND is_active = true
			  AND (expires_at IS NULL OR expires_at > NOW())
		) < :max_active`

	arg := struct {
		apiKeyPersistence
		MaxActive int `db:"max_active"`
	}{toPersistence(key), maxActive}

	result, err := r.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return apikey.ErrDuplicateName().WithDetail("name", key.Name)
		}
		return errx.Wrap(err, "failed to save API key", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on save", errx.TypeInternal)
	}
	if rows == 0 {
		return apikey.ErrKeyLimitExceeded().WithDetail("max", maxActive)
	}
	return nil
}

func (r *PostgresAPIKeyRepository) FindByID(ctx context.Context, id string) (*apikey.APIKey, error) {
	var p apiKeyPersistence
	query := `SELECT * FROM api_keys WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find API key by id", errx.TypeInternal)
	}
	key := p.toDomain()
	return &key, nil
}

func (r *PostgresAPIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	var p apiKeyPersistence
	query := `SELECT * FROM api_keys WHERE key_hash = $1`
	if err := r.db.GetContext(ctx, &p, query, keyHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find API key by hash", errx.TypeInternal)
	}
	key := p.toDomain()
	return &key, nil
}

func (r *PostgresAPIKeyRepository) FindByOwner(ctx context.Context, ownerID kernel.UserID) ([]*apikey.APIKey, error) {
	var rows []apiKeyPersistence
	query := `SELECT * FROM api_keys WHERE owner_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query, ownerID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to list API keys", errx.TypeInternal)
	}

	keys := make([]*apikey.APIKey, len(rows))
	for i, row := range rows {
		key := row.toDomain()
		keys[i] = &key
	}
	return keys, nil
}

func (r *PostgresAPIKeyRepository) NameExists(ctx context.Context, ownerID kernel.UserID, name string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM api_keys WHERE owner_id = $1 AND name = $2)`
	if err := r.db.GetContext(ctx, &exists, query, ownerID.String(), name); err != nil {
		return false, errx.Wrap(err, "failed to check API key name", errx.TypeInternal)
	}
	return exists, nil
}

func (r *PostgresAPIKeyRepository) Deactivate(ctx context.Context, id string, ownerID kernel.UserID) error {
	query := `UPDATE api_keys SET is_active = false, updated_at = NOW() WHERE id = $1 AND owner_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID.String())
	if err != nil {
		return errx.Wrap(err, "failed to deactivate API key", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on deactivate", errx.TypeInternal)
	}
	if rows == 0 {
		return apikey.ErrKeyNotFound()
	}
	return nil
}

func (r *PostgresAPIKeyRepository) Delete(ctx context.Context, id string, ownerID kernel.UserID) error {
	query := `DELETE FROM api_keys WHERE id = $1 AND owner_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete API key", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on delete", errx.TypeInternal)
	}
	if rows == 0 {
		return apikey.ErrKeyNotFound()
	}
	return nil
}

func (r *PostgresAPIKeyRepository) RecordUsage(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return errx.Wrap(err, "failed to record API key usage", errx.TypeInternal)
	}
	return nil
}

type apiKeyPersistence struct {
	ID                 string         `db:"id"`
	KeyHash            string         `db:"key_hash"`
	KeyPrefix          string         `db:"key_prefix"`
	OwnerID            string         `db:"owner_id"`
	OrganizationID     sql.NullString `db:"organization_id"`
	Name               string         `db:"name"`
	Description        string         `db:"description"`
	AllowedIPs         pq.StringArray `db:"allowed_ips"`
	RateLimitPerMinute int            `db:"rate_limit_per_minute"`
	UsageCount         int64          `db:"usage_count"`
	LastUsedAt         sql.NullTime   `db:"last_used_at"`
	IsActive           bool           `db:"is_active"`
	ExpiresAt          sql.NullTime   `db:"expires_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func toPersistence(k apikey.APIKey) apiKeyPersistence {
	p := apiKeyPersistence{
		ID:                 k.ID,
		KeyHash:            k.KeyHash,
		KeyPrefix:          k.KeyPrefix,
		OwnerID:            k.OwnerID.String(),
		Name:               k.Name,
		Description:        k.Description,
		AllowedIPs:         pq.StringArray(k.AllowedIPs),
		RateLimitPerMinute: k.RateLimitPerMinute,
		UsageCount:         k.UsageCount,
		IsActive:           k.IsActive,
		CreatedAt:          k.CreatedAt,
		UpdatedAt:          k.UpdatedAt,
	}
	if k.OrganizationID != nil {
		p.OrganizationID = sql.NullString{String: k.OrganizationID.String(), Valid: true}
	}
	if k.LastUsedAt != nil {
		p.LastUsedAt = sql.NullTime{Time: *k.LastUsedAt, Valid: true}
	}
	if k.ExpiresAt != nil {
		p.ExpiresAt = sql.NullTime{Time: *k.ExpiresAt, Valid: true}
	}
	return p
}

func (p apiKeyPersistence) toDomain() apikey.APIKey {
	key := apikey.APIKey{
		ID:                 p.ID,
		KeyHash:            p.KeyHash,
		KeyPrefix:          p.KeyPrefix,
		OwnerID:            kernel.NewUserID(p.OwnerID),
		Name:               p.Name,
		Description:        p.Description,
		AllowedIPs:         []string(p.AllowedIPs),
		RateLimitPerMinute: p.RateLimitPerMinute,
		UsageCount:         p.UsageCount,
		IsActive:           p.IsActive,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if p.OrganizationID.Valid {
		id := kernel.NewOrgID(p.OrganizationID.String)
		key.OrganizationID = &id
	}
	if p.LastUsedAt.Valid {
		t := p.LastUsedAt.Time
		key.LastUsedAt = &t
	}
	if p.ExpiresAt.Valid {
		t := p.ExpiresAt.Time
		key.ExpiresAt = &t
	}
	return key
}
