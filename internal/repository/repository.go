package repository

import (
	"context"
	"time"

	"github.com/locoplatform/api/internal/domain"
)

// UserRepository persists users. Emails are stored lowercase and compared
// case-insensitively.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUserProfile(ctx context.Context, user *domain.User) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// SessionRepository persists revocable sessions. All mutations are single
// atomic statements so an aborted request cannot leave partial state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSessionByToken(ctx context.Context, token string) (*domain.Session, error)
	GetSessionByID(ctx context.Context, id string) (*domain.Session, error)
	// TouchSession updates last_accessed_at iff the session is still valid.
	// Returns ErrNotFound when the session is absent, revoked or expired.
	TouchSession(ctx context.Context, token string, at time.Time) error
	RevokeSession(ctx context.Context, id string) error
	RevokeSessionsByUser(ctx context.Context, userID string) error
	ListActiveSessionsByUser(ctx context.Context, userID string) ([]domain.Session, error)
	// DeactivateExpiredSessions flips is_active on rows past their expiry,
	// returning how many were swept.
	DeactivateExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// TenantRepository manages tenants and memberships.
type TenantRepository interface {
	CreateTenant(ctx context.Context, tenant *domain.Tenant) error
	GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	UpdateTenantSettings(ctx context.Context, id string, settings domain.TenantSettings) error
	UpsertMember(ctx context.Context, member *domain.TenantMember) error
	GetMember(ctx context.Context, tenantID, userID string) (*domain.TenantMember, error)
	ListMembers(ctx context.Context, tenantID string) ([]domain.TenantMember, error)
	ListTenantsByUser(ctx context.Context, userID string) ([]domain.Tenant, error)
}
