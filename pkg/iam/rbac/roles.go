package rbac

// RoleName is a named, organization-agnostic role definition.
type RoleName string

const (
	RoleEmployee            RoleName = "employee"
	RoleTeamManager         RoleName = "team_manager"
	RoleHiringManager       RoleName = "hiring_manager"
	RoleRecruiter           RoleName = "recruiter"
	RoleLearningSpecialist  RoleName = "learning_specialist"
	RoleSuccessionPlanner   RoleName = "succession_planner"
	RoleHRManager           RoleName = "hr_manager"
	RoleOrganizationManager RoleName = "organization_manager"
	RoleOrganizationAdmin   RoleName = "organization_admin"
	RoleClaveHROperator     RoleName = "clavehr_operator"
	RoleSuperAdmin          RoleName = "super_admin"
)

// RoleTable is the pure, immutable lookup structure the resolver evaluates
// against. It is built once at startup and never mutated afterwards; tests may
// construct alternate tables.
type RoleTable struct {
	// order lists roles from least to most privileged.
	order    []RoleName
	priority map[RoleName]int

	// grants maps "highest role held" to the set of roles it may assign.
	grants map[RoleName][]RoleName

	// operatorBypass names the sensitive permissions a clavehr_operator is
	// granted without a role-permission row.
	operatorBypass map[string]struct{}
}

// DefaultRoleTable builds the production role hierarchy.
func DefaultRoleTable() *RoleTable {
	order := []RoleName{
		RoleEmployee,
		RoleTeamManager,
		RoleHiringManager,
		RoleRecruiter,
		RoleLearningSpecialist,
		RoleSuccessionPlanner,
		RoleHRManager,
		RoleOrganizationManager,
		RoleOrganizationAdmin,
		RoleClaveHROperator,
		RoleSuperAdmin,
	}

	allRoles := append([]RoleName(nil), order...)

	allButSuperAdmin := make([]RoleName, 0, len(order)-1)
	for _, r := range order {
		if r != RoleSuperAdmin {
			allButSuperAdmin = append(allButSuperAdmin, r)
		}
	}

	// An organization admin may grant every operational role strictly below
	// itself within its own organization.
	orgAdminGrants := []RoleName{
		RoleEmployee,
		RoleTeamManager,
		RoleHiringManager,
		RoleRecruiter,
		RoleLearningSpecialist,
		RoleSuccessionPlanner,
		RoleHRManager,
		RoleOrganizationManager,
	}

	grants := map[RoleName][]RoleName{
		RoleSuperAdmin:          allRoles,
		RoleClaveHROperator:     allButSuperAdmin,
		RoleOrganizationAdmin:   orgAdminGrants,
		RoleOrganizationManager: {RoleEmployee, RoleTeamManager},
		RoleHRManager:           {RoleEmployee},
	}

	return NewRoleTable(order, grants, []string{
		PermManageOrganizations,
		PermManageOrganizationSettings,
		PermViewAllOrganizations,
		PermManageIntegrations,
	})
}

// NewRoleTable builds a RoleTable from an ordered hierarchy (least privileged
// first), an assignment-grant map and the operator bypass permission names.
func NewRoleTable(order []RoleName, grants map[RoleName][]RoleName, bypass []string) *RoleTable {
	priority := make(map[RoleName]int, len(order))
	for i, r := range order {
		priority[r] = i
	}
	bypassSet := make(map[string]struct{}, len(bypass))
	for _, p := range bypass {
		bypassSet[p] = struct{}{}
	}
	return &RoleTable{
		order:          order,
		priority:       priority,
		grants:         grants,
		operatorBypass: bypassSet,
	}
}

// Known reports whether the table defines the role.
func (t *RoleTable) Known(r RoleName) bool {
	_, ok := t.priority[r]
	return ok
}

// Priority returns the rank of a role (higher is more privileged) or -1 for an
// unknown role.
func (t *RoleTable) Priority(r RoleName) int {
	if p, ok := t.priority[r]; ok {
		return p
	}
	return -1
}

// Highest returns the most privileged role of the given set. Unknown roles are
// ignored; an empty or entirely-unknown set defaults to employee.
func (t *RoleTable) Highest(roles []RoleName) RoleName {
	best := RoleEmployee
	bestPrio := -1
	for _, r := range roles {
		if p, ok := t.priority[r]; ok && p > bestPrio {
			best = r
			bestPrio = p
		}
	}
	return best
}

// Grants returns the set of roles the given role may assign. The returned
// slice is a copy.
func (t *RoleTable) Grants(r RoleName) []RoleName {
	g, ok := t.grants[r]
	if !ok {
		return nil
	}
	return append([]RoleName(nil), g...)
}

// MayGrant reports whether holder may assign target per the grant table.
func (t *RoleTable) MayGrant(holder, target RoleName) bool {
	for _, r := range t.grants[holder] {
		if r == target {
			return true
		}
	}
	return false
}

// IsOperatorBypass reports whether the permission is granted to a
// clavehr_operator without a role-permission row.
func (t *RoleTable) IsOperatorBypass(permission string) bool {
	_, ok := t.operatorBypass[permission]
	return ok
}
