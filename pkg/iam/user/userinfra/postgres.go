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
	"github.com/lib/pq"
)

// PostgresUserRepository is the PostgreSQL implementation of user.UserRepository.
type PostgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository creates the repository.
func NewPostgresUserRepository(db *sqlx.DB) user.UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id kernel.UserID) (*user.User, error) {
	var p userPersistence
	query := `SELECT * FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, id.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by id", errx.TypeInternal)
	}
	return toUserDomain(p)
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	var p userPersistence
	query := `SELECT * FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &p, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by email", errx.TypeInternal)
	}
	return toUserDomain(p)
}

func (r *PostgresUserRepository) Create(ctx context.Context, u user.User) error {
	query := `
		INSERT INTO users (
			id, email, first_name, last_name, display_name, picture_url,
			organization_id, status, metadata, created_at, updated_at
		) VALUES (
			:id, :email, :first_name, :last_name, :display_name, :picture_url,
			:organization_id, :status, :metadata, :created_at, :updated_at
		)`

	p, err := toUserPersistence(u)
	if err != nil {
		return err
	}

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return user.ErrEmailTaken().WithDetail("email", u.Email)
		}
		return errx.Wrap(err, "failed to create user", errx.TypeInternal).
			WithDetail("user_id", u.ID.String())
	}
	return nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, u user.User) error {
	query := `
		UPDATE users SET
			first_name = :first_name,
			last_name = :last_name,
			display_name = :display_name,
			picture_url = :picture_url,
			organization_id = :organization_id,
			status = :status,
			metadata = :metadata,
			updated_at = :updated_at
		WHERE id = :id`

	p, err := toUserPersistence(u)
	if err != nil {
		return err
	}

	result, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return errx.Wrap(err, "failed to update user", errx.TypeInternal).
			WithDetail("user_id", u.ID.String())
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on update", errx.TypeInternal)
	}
	if rows == 0 {
		return user.ErrUserNotFound()
	}
	return nil
}

type userPersistence struct {
	ID             string         `db:"id"`
	Email          string         `db:"email"`
	FirstName      string         `db:"first_name"`
	LastName       string         `db:"last_name"`
	DisplayName    string         `db:"display_name"`
	PictureURL     sql.NullString `db:"picture_url"`
	OrganizationID *string        `db:"organization_id"`
	Status         string         `db:"status"`
	Metadata       []byte         `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func toUserPersistence(u user.User) (userPersistence, error) {
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return userPersistence{}, errx.Wrap(err, "failed to encode user metadata", errx.TypeInternal)
	}
	var orgID *string
	if u.OrganizationID != nil {
		s := u.OrganizationID.String()
		orgID = &s
	}
	return userPersistence{
		ID:             u.ID.String(),
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		DisplayName:    u.DisplayName,
		PictureURL:     sql.NullString{String: u.PictureURL, Valid: u.PictureURL != ""},
		OrganizationID: orgID,
		Status:         string(u.Status),
		Metadata:       meta,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}, nil
}

func toUserDomain(p userPersistence) (*user.User, error) {
	var meta map[string]any
	if len(p.Metadata) > 0 {
		if err := json.Unmarshal(p.Metadata, &meta); err != nil {
			return nil, errx.Wrap(err, "failed to decode user metadata", errx.TypeInternal)
		}
	}
	var orgID *kernel.OrgID
	if p.OrganizationID != nil {
		id := kernel.NewOrgID(*p.OrganizationID)
		orgID = &id
	}
	return &user.User{
		ID:             kernel.NewUserID(p.ID),
		Email:          p.Email,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		DisplayName:    p.DisplayName,
		PictureURL:     p.PictureURL.String,
		OrganizationID: orgID,
		Status:         user.Status(p.Status),
		Metadata:       meta,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}, nil
}
