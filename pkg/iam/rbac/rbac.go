package rbac

import (
	"net/http"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/kernel"
)

// Sensitive operational permissions a clavehr_operator holds implicitly.
const (
	PermManageOrganizations        = "manage_organizations"
	PermManageOrganizationSettings = "manage_organization_settings"
	PermViewAllOrganizations       = "view_all_organizations"
	PermManageIntegrations         = "manage_integrations"
)

// Role is a globally-named role definition row.
type Role struct {
	ID          string    `db:"id" json:"id"`
	Name        RoleName  `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Permission is a globally-named capability row.
type Permission struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RoleAssignment grants a user a role, either globally (OrganizationID nil)
// or scoped to one organization. A global grant is distinct from a scoped
// grant of the same role: the pair (user, role, organization) is unique.
type RoleAssignment struct {
	UserID         kernel.UserID `json:"user_id"`
	RoleName       RoleName      `json:"role"`
	OrganizationID *kernel.OrgID `json:"organization_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// IsGlobal reports whether the assignment is organization-agnostic.
func (a RoleAssignment) IsGlobal() bool {
	return a.OrganizationID == nil
}

// AppliesTo reports whether the assignment is effective in the given scope:
// global grants apply everywhere, scoped grants only in their organization.
func (a RoleAssignment) AppliesTo(orgID *kernel.OrgID) bool {
	if a.IsGlobal() {
		return true
	}
	return orgID != nil && *a.OrganizationID == *orgID
}

var ErrRegistry = errx.NewRegistry("RBAC")

var (
	CodePermissionDenied    = ErrRegistry.Register("PERMISSION_DENIED", errx.TypeForbidden, http.StatusForbidden, "Permission denied")
	CodeCannotAssignRole    = ErrRegistry.Register("CANNOT_ASSIGN_ROLE", errx.TypeForbidden, http.StatusForbidden, "Not allowed to assign this role")
	CodeUnknownRole         = ErrRegistry.Register("UNKNOWN_ROLE", errx.TypeValidation, http.StatusBadRequest, "Unknown role")
	CodeDuplicateAssignment = ErrRegistry.Register("DUPLICATE_ASSIGNMENT", errx.TypeConflict, http.StatusConflict, "Role already assigned")
)

func ErrPermissionDenied() *errx.Error    { return ErrRegistry.New(CodePermissionDenied) }
func ErrCannotAssignRole() *errx.Error    { return ErrRegistry.New(CodeCannotAssignRole) }
func ErrUnknownRole() *errx.Error         { return ErrRegistry.New(CodeUnknownRole) }
func ErrDuplicateAssignment() *errx.Error { return ErrRegistry.New(CodeDuplicateAssignment) }
