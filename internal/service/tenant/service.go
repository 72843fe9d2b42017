// Package tenant manages tenants, memberships and the per-request
// membership resolution used by the authorization middleware.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/locoplatform/api/internal/apperr"
	"github.com/locoplatform/api/internal/domain"
	"github.com/locoplatform/api/internal/repository"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Service handles tenant workflows.
type Service struct {
	repo   repository.TenantRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(repo repository.TenantRepository, logger *slog.Logger) Service {
	return Service{repo: repo, logger: logger}
}

// CreateInput is the tenant creation payload.
type CreateInput struct {
	Name    string
	Slug    string
	Domain  string
	OwnerID string
}

// Create registers a tenant and makes the owner its first member.
func (s Service) Create(ctx context.Context, input CreateInput) (*domain.Tenant, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperr.Validation("name", "tenant name is required")
	}
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, apperr.Validation("slug", "slug must be lowercase letters, digits and hyphens")
	}
	if input.OwnerID == "" {
		return nil, apperr.Validation("owner_id", "owner is required")
	}

	now := time.Now().UTC()
	tenant := &domain.Tenant{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(input.Name),
		Slug:      slug,
		Domain:    strings.ToLower(strings.TrimSpace(input.Domain)),
		Settings:  domain.DefaultTenantSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateTenant(ctx, tenant); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Validation("slug", "slug or domain is already taken")
		}
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	owner := &domain.TenantMember{
		ID:        uuid.NewString(),
		TenantID:  tenant.ID,
		UserID:    input.OwnerID,
		Role:      domain.TenantRoleOwner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertMember(ctx, owner); err != nil {
		return nil, fmt.Errorf("create owner membership: %w", err)
	}
	s.logger.Info("tenant created", "tenant_id", tenant.ID, "slug", tenant.Slug, "owner_id", input.OwnerID)
	return tenant, nil
}

// Get loads a tenant by id.
func (s Service) Get(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	tenant, err := s.repo.GetTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	return tenant, nil
}

// UpdateSettings replaces the tenant settings blob.
func (s Service) UpdateSettings(ctx context.Context, tenantID string, settings domain.TenantSettings) error {
	if err := s.repo.UpdateTenantSettings(ctx, tenantID, settings); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("update tenant settings: %w", err)
	}
	s.logger.Info("tenant settings updated", "tenant_id", tenantID)
	return nil
}

// AddMemberInput is the membership payload.
type AddMemberInput struct {
	UserID      string
	Role        string
	Permissions []string
}

// AddMember grants a user membership in the tenant, updating the row if one
// already exists for the (user, tenant) pair.
func (s Service) AddMember(ctx context.Context, tenantID string, input AddMemberInput) (*domain.TenantMember, error) {
	if input.UserID == "" {
		return nil, apperr.Validation("user_id", "user is required")
	}
	role, ok := domain.ParseTenantRole(input.Role)
	if !ok {
		return nil, apperr.Validation("role", "unknown tenant role")
	}
	now := time.Now().UTC()
	member := &domain.TenantMember{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      input.UserID,
		Role:        role,
		Permissions: input.Permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.UpsertMember(ctx, member); err != nil {
		return nil, fmt.Errorf("upsert member: %w", err)
	}
	s.logger.Info("tenant member added", "tenant_id", tenantID, "user_id", input.UserID, "role", role)
	return member, nil
}

// Members lists the tenant's memberships.
func (s Service) Members(ctx context.Context, tenantID string) ([]domain.TenantMember, error) {
	members, err := s.repo.ListMembers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// ListForUser returns the tenants the user belongs to.
func (s Service) ListForUser(ctx context.Context, userID string) ([]domain.Tenant, error) {
	tenants, err := s.repo.ListTenantsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// Membership is the immutable resolved context attached to a request for
// the duration of handling.
type Membership struct {
	TenantID    string
	UserID      string
	Role        domain.TenantRole
	Permissions []string
}

// HasPermission checks the effective permission set for an exact name.
func (m Membership) HasPermission(name string) bool {
	for _, p := range m.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// Resolve maps an authenticated identity and tenant to its membership.
// A missing membership is an authorization failure, not a lookup miss.
func (s Service) Resolve(ctx context.Context, userID, tenantID string) (*Membership, error) {
	member, err := s.repo.GetMember(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrAuthorizationFailed
		}
		return nil, fmt.Errorf("lookup membership: %w", err)
	}
	return &Membership{
		TenantID:    member.TenantID,
		UserID:      member.UserID,
		Role:        member.Role,
		Permissions: member.EffectivePermissions(),
	}, nil
}
