package rbacinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/rbac"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresAssignmentRepository is the PostgreSQL implementation of
// rbac.AssignmentRepository over the user_roles / roles / role_permissions /
// permissions tables.
type PostgresAssignmentRepository struct {
	db *sqlx.DB
}

// NewPostgresAssignmentRepository creates the repository.
func NewPostgresAssignmentRepository(db *sqlx.DB) rbac.AssignmentRepository {
	return &PostgresAssignmentRepository{db: db}
}

func (r *PostgresAssignmentRepository) ListForUser(ctx context.Context, userID kernel.UserID) ([]rbac.RoleAssignment, error) {
	var rows []assignmentRow
	query := `
		SELECT ur.user_id, ro.name AS role_name, ur.organization_id, ur.created_at
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1`
	if err := r.db.SelectContext(ctx, &rows, query, userID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to list role assignments", errx.TypeInternal).
			WithDetail("user_id", userID.String())
	}

	assignments := make([]rbac.RoleAssignment, len(rows))
	for i, row := range rows {
		assignments[i] = row.toDomain()
	}
	return assignments, nil
}

func (r *PostgresAssignmentRepository) Assign(ctx context.Context, a rbac.RoleAssignment) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, organization_id, created_at)
		SELECT $1, ro.id, $2, $3 FROM roles ro WHERE ro.name = $4`

	var orgID *string
	if a.OrganizationID != nil {
		s := a.OrganizationID.String()
		orgID = &s
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query, a.UserID.String(), orgID, createdAt, string(a.RoleName))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return rbac.ErrDuplicateAssignment().
				WithDetail("role", string(a.RoleName))
		}
		return errx.Wrap(err, "failed to assign role", errx.TypeInternal).
			WithDetail("role", string(a.RoleName))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on assign", errx.TypeInternal)
	}
	if rows == 0 {
		return rbac.ErrUnknownRole().WithDetail("role", string(a.RoleName))
	}
	return nil
}

func (r *PostgresAssignmentRepository) Remove(ctx context.Context, userID kernel.UserID, role rbac.RoleName, orgID *kernel.OrgID) error {
	// Removing a nonexistent assignment is deliberately not an error.
	query := `
		DELETE FROM user_roles ur
		USING roles ro
		WHERE ro.id = ur.role_id
		  AND ur.user_id = $1
		  AND ro.name = $2
		  AND ur.organization_id IS NOT DISTINCT FROM $3`

	var org *string
	if orgID != nil {
		s := orgID.String()
		org = &s
	}
	if _, err := r.db.ExecContext(ctx, query, userID.String(), string(role), org); err != nil {
		return errx.Wrap(err, "failed to remove role assignment", errx.TypeInternal).
			WithDetail("role", string(role))
	}
	return nil
}

func (r *PostgresAssignmentRepository) PermissionsForRoles(ctx context.Context, roles []rbac.RoleName) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, len(roles))
	for i, ro := range roles {
		names[i] = string(ro)
	}

	var permissions []string
	query := `
		SELECT DISTINCT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles ro ON ro.id = rp.role_id
		WHERE ro.name = ANY($1)`
	if err := r.db.SelectContext(ctx, &permissions, query, pq.Array(names)); err != nil {
		return nil, errx.Wrap(err, "failed to resolve role permissions", errx.TypeInternal)
	}
	return permissions, nil
}

type assignmentRow struct {
	UserID         string         `db:"user_id"`
	RoleName       string         `db:"role_name"`
	OrganizationID sql.NullString `db:"organization_id"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (row assignmentRow) toDomain() rbac.RoleAssignment {
	var orgID *kernel.OrgID
	if row.OrganizationID.Valid {
		id := kernel.NewOrgID(row.OrganizationID.String)
		orgID = &id
	}
	return rbac.RoleAssignment{
		UserID:         kernel.NewUserID(row.UserID),
		RoleName:       rbac.RoleName(row.RoleName),
		OrganizationID: orgID,
		CreatedAt:      row.CreatedAt,
	}
}
