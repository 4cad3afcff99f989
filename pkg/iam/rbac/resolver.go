package rbac

import (
	"context"

	"github.com/clavehr/identity/pkg/kernel"
)

// Resolver computes effective roles, assignable roles and permission checks
// from a user's role assignments. It is stateless; every call reads the
// current assignments from the repository, and all precedence decisions come
// from the injected RoleTable.
type Resolver struct {
	repo  AssignmentRepository
	table *RoleTable
}

// NewResolver creates a resolver over the given repository and role table.
// Pass DefaultRoleTable() outside of tests.
func NewResolver(repo AssignmentRepository, table *RoleTable) *Resolver {
	return &Resolver{repo: repo, table: table}
}

// Table exposes the role table for claim construction and handlers.
func (r *Resolver) Table() *RoleTable { return r.table }

// PrimaryRole returns the single most privileged role the user holds in any
// scope, defaulting to employee when nothing is assigned.
func (r *Resolver) PrimaryRole(ctx context.Context, userID kernel.UserID) (RoleName, error) {
	roles, err := r.AllRoleNames(ctx, userID)
	if err != nil {
		return "", err
	}
	return r.table.Highest(roles), nil
}

// AllRoleNames returns the distinct role names the user holds in any scope.
func (r *Resolver) AllRoleNames(ctx context.Context, userID kernel.UserID) ([]RoleName, error) {
	assignments, err := r.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[RoleName]struct{}, len(assignments))
	names := make([]RoleName, 0, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.RoleName]; ok {
			continue
		}
		seen[a.RoleName] = struct{}{}
		names = append(names, a.RoleName)
	}
	return names, nil
}

// AssignableRoles returns the set of roles the user may grant in the given
// organization scope, derived from the most senior tier the user occupies.
// The platform tiers (super_admin, clavehr_operator) apply regardless of
// scope; the organization tiers only count when held globally or in the
// given organization.
func (r *Resolver) AssignableRoles(ctx context.Context, userID kernel.UserID, orgID *kernel.OrgID) ([]RoleName, error) {
	held, err := r.tierRoles(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if len(held) == 0 {
		return []RoleName{}, nil
	}
	grants := r.table.Grants(r.table.Highest(held))
	if grants == nil {
		return []RoleName{}, nil
	}
	return grants, nil
}

// CanAssign reports whether the assigner may grant the target role in the
// given organization scope. Tiers are evaluated from most to least senior and
// the first tier the assigner occupies decides: a principal holding several
// roles is judged by its most senior applicable rule, never an arbitrary one.
func (r *Resolver) CanAssign(ctx context.Context, assignerID kernel.UserID, target RoleName, orgID *kernel.OrgID) (bool, error) {
	if !r.table.Known(target) {
		return false, ErrUnknownRole().WithDetail("role", string(target))
	}

	held, err := r.tierRoles(ctx, assignerID, orgID)
	if err != nil {
		return false, err
	}

	holds := func(role RoleName) bool {
		for _, h := range held {
			if h == role {
				return true
			}
		}
		return false
	}

	switch {
	case holds(RoleSuperAdmin):
		return true, nil
	case holds(RoleClaveHROperator):
		return target != RoleSuperAdmin, nil
	case holds(RoleOrganizationAdmin):
		return r.table.MayGrant(RoleOrganizationAdmin, target), nil
	case holds(RoleOrganizationManager):
		return r.table.MayGrant(RoleOrganizationManager, target), nil
	case holds(RoleHRManager):
		return r.table.MayGrant(RoleHRManager, target), nil
	}
	return false, nil
}

// HasPermission reports whether the user holds the named permission in the
// given organization scope. Super admins pass unconditionally; a
// clavehr_operator passes for the fixed bypass set; everything else goes
// through the assignment -> role-permission join.
func (r *Resolver) HasPermission(ctx context.Context, userID kernel.UserID, permission string, orgID *kernel.OrgID) (bool, error) {
	assignments, err := r.repo.ListForUser(ctx, userID)
	if err != nil {
		return false, err
	}

	applicable := make([]RoleName, 0, len(assignments))
	for _, a := range assignments {
		if a.RoleName == RoleSuperAdmin {
			return true, nil
		}
		if a.RoleName == RoleClaveHROperator && r.table.IsOperatorBypass(permission) {
			return true, nil
		}
		if a.AppliesTo(orgID) {
			applicable = append(applicable, a.RoleName)
		}
	}
	if len(applicable) == 0 {
		return false, nil
	}

	granted, err := r.repo.PermissionsForRoles(ctx, applicable)
	if err != nil {
		return false, err
	}
	for _, p := range granted {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

// tierRoles returns the role names that count toward the assignment tiers in
// the given scope: platform roles (super_admin, clavehr_operator) in any
// scope, everything else only when the assignment applies to orgID.
func (r *Resolver) tierRoles(ctx context.Context, userID kernel.UserID, orgID *kernel.OrgID) ([]RoleName, error) {
	assignments, err := r.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make([]RoleName, 0, len(assignments))
	for _, a := range assignments {
		if a.RoleName == RoleSuperAdmin || a.RoleName == RoleClaveHROperator || a.AppliesTo(orgID) {
			held = append(held, a.RoleName)
		}
	}
	return held, nil
}
