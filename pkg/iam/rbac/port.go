package rbac

import (
	"context"

	"github.com/clavehr/identity/pkg/kernel"
)

// AssignmentRepository is the persistence contract for role assignments and
// the role-permission join.
type AssignmentRepository interface {
	// ListForUser returns every assignment the user holds, any scope.
	ListForUser(ctx context.Context, userID kernel.UserID) ([]RoleAssignment, error)

	// Assign records an assignment. Returns a duplicate-assignment conflict if
	// the (user, role, organization) triple already exists.
	Assign(ctx context.Context, a RoleAssignment) error

	// Remove deletes an assignment; removing a nonexistent one is not an error.
	Remove(ctx context.Context, userID kernel.UserID, role RoleName, orgID *kernel.OrgID) error

	// PermissionsForRoles returns the distinct permission names granted to any
	// of the given roles through the role-permission join.
	PermissionsForRoles(ctx context.Context, roles []RoleName) ([]string, error)
}
