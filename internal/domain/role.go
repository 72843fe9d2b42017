package domain

// TenantRole is a member's role within a tenant. Roles form a total order
// Owner > Admin > Manager > Member; a held role satisfies a requirement
// when its rank is at least as privileged.
type TenantRole string

const (
	TenantRoleOwner   TenantRole = "Owner"
	TenantRoleAdmin   TenantRole = "Admin"
	TenantRoleManager TenantRole = "Manager"
	TenantRoleMember  TenantRole = "Member"
)

// ParseTenantRole validates a wire value against the closed enumeration.
func ParseTenantRole(value string) (TenantRole, bool) {
	switch TenantRole(value) {
	case TenantRoleOwner, TenantRoleAdmin, TenantRoleManager, TenantRoleMember:
		return TenantRole(value), true
	}
	return "", false
}

// rank orders roles by privilege, most privileged first. Unknown roles sit
// below Member so they never satisfy any requirement.
func (r TenantRole) rank() int {
	switch r {
	case TenantRoleOwner:
		return 0
	case TenantRoleAdmin:
		return 1
	case TenantRoleManager:
		return 2
	case TenantRoleMember:
		return 3
	default:
		return 4
	}
}

// Satisfies reports whether the held role meets the required one.
func (r TenantRole) Satisfies(required TenantRole) bool {
	if _, ok := ParseTenantRole(string(r)); !ok {
		return false
	}
	if _, ok := ParseTenantRole(string(required)); !ok {
		return false
	}
	return r.rank() <= required.rank()
}

// DefaultPermissions returns the capabilities granted by a role before any
// explicit per-member grants.
func (r TenantRole) DefaultPermissions() []string {
	switch r {
	case TenantRoleOwner:
		return []string{
			"tenant:manage", "members:invite", "members:remove", "members:view",
			"jobs:create", "jobs:edit", "jobs:delete", "jobs:view",
			"applications:view", "applications:update",
		}
	case TenantRoleAdmin:
		return []string{
			"members:invite", "members:view",
			"jobs:create", "jobs:edit", "jobs:delete", "jobs:view",
			"applications:view", "applications:update",
		}
	case TenantRoleManager:
		return []string{
			"members:view",
			"jobs:create", "jobs:edit", "jobs:view",
			"applications:view",
		}
	case TenantRoleMember:
		return []string{"jobs:view"}
	default:
		return nil
	}
}
