package domain

import "testing"

func TestTenantRoleSatisfies(t *testing.T) {
	cases := []struct {
		held     TenantRole
		required TenantRole
		want     bool
	}{
		{TenantRoleOwner, TenantRoleOwner, true},
		{TenantRoleOwner, TenantRoleMember, true},
		{TenantRoleAdmin, TenantRoleOwner, false},
		{TenantRoleAdmin, TenantRoleAdmin, true},
		{TenantRoleAdmin, TenantRoleManager, true},
		{TenantRoleManager, TenantRoleAdmin, false},
		{TenantRoleManager, TenantRoleMember, true},
		{TenantRoleMember, TenantRoleAdmin, false},
		{TenantRoleMember, TenantRoleMember, true},
		{TenantRole("Intruder"), TenantRoleMember, false},
		{TenantRoleOwner, TenantRole("Intruder"), false},
	}
	for _, tc := range cases {
		if got := tc.held.Satisfies(tc.required); got != tc.want {
			t.Fatalf("%s satisfies %s: expected %v, got %v", tc.held, tc.required, tc.want, got)
		}
	}
}

func TestParseTenantRole(t *testing.T) {
	for _, valid := range []string{"Owner", "Admin", "Manager", "Member"} {
		if _, ok := ParseTenantRole(valid); !ok {
			t.Fatalf("expected %q to parse", valid)
		}
	}
	for _, invalid := range []string{"", "owner", "SuperAdmin", "root"} {
		if _, ok := ParseTenantRole(invalid); ok {
			t.Fatalf("expected %q to be rejected", invalid)
		}
	}
}

func TestEffectivePermissionsExtendDefaults(t *testing.T) {
	member := TenantMember{
		Role:        TenantRoleMember,
		Permissions: []string{"jobs:create", "jobs:view"},
	}
	perms := member.EffectivePermissions()
	counts := make(map[string]int)
	for _, p := range perms {
		counts[p]++
	}
	if counts["jobs:view"] != 1 {
		t.Fatalf("expected deduplicated jobs:view, got %d", counts["jobs:view"])
	}
	if counts["jobs:create"] != 1 {
		t.Fatalf("expected explicit grant jobs:create present")
	}
	if counts["jobs:delete"] != 0 {
		t.Fatalf("member must not gain jobs:delete")
	}
}

func TestParseUserType(t *testing.T) {
	for _, valid := range []string{"Professional", "Employer", "SuperAdmin"} {
		if _, ok := ParseUserType(valid); !ok {
			t.Fatalf("expected %q to parse", valid)
		}
	}
	if _, ok := ParseUserType("Guest"); ok {
		t.Fatalf("expected Guest to be rejected")
	}
}
