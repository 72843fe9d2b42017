package domain

import "time"

// Tenant is an isolated customer organisation with its own branding,
// quotas and feature flags.
type Tenant struct {
	ID        string
	Name      string
	Slug      string
	Domain    string
	Settings  TenantSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantSettings is stored as a JSONB blob on the tenant row.
type TenantSettings struct {
	PrimaryColour   string   `json:"primary_colour"`
	SecondaryColour string   `json:"secondary_colour"`
	LogoURL         string   `json:"logo_url,omitempty"`
	MaxUsers        int      `json:"max_users"`
	MaxJobs         int      `json:"max_jobs"`
	Features        []string `json:"features"`
}

// DefaultTenantSettings returns the settings applied to new tenants.
func DefaultTenantSettings() TenantSettings {
	return TenantSettings{
		PrimaryColour:   "#1e40af",
		SecondaryColour: "#3b82f6",
		MaxUsers:        10,
		MaxJobs:         50,
		Features:        []string{"basic"},
	}
}

// TenantMember grants a user a role and permission set within one tenant.
// At most one row exists per (user, tenant) pair.
type TenantMember struct {
	ID          string
	TenantID    string
	UserID      string
	Role        TenantRole
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectivePermissions is the role's default grants extended by the
// member's explicit grants, deduplicated.
func (m TenantMember) EffectivePermissions() []string {
	defaults := m.Role.DefaultPermissions()
	seen := make(map[string]struct{}, len(defaults)+len(m.Permissions))
	merged := make([]string, 0, len(defaults)+len(m.Permissions))
	for _, set := range [][]string{defaults, m.Permissions} {
		for _, p := range set {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}
