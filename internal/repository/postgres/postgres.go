// Package postgres implements the repository interfaces on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/locoplatform/api/internal/domain"
	"github.com/locoplatform/api/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.SessionRepository = (*Repository)(nil)
	_ repository.TenantRepository  = (*Repository)(nil)
)

const uniqueViolation = "23505"

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// CreateUser inserts a user. The email is normalised to lowercase.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users
		(id, email, password_hash, first_name, last_name, phone, user_type, is_active, is_email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, query,
		user.ID, strings.ToLower(user.Email), user.PasswordHash,
		user.FirstName, user.LastName, user.Phone,
		string(user.UserType), user.IsActive, user.IsEmailVerified,
		user.CreatedAt, user.UpdatedAt)
	return translateError(err)
}

const userColumns = `id, email, password_hash, first_name, last_name, phone,
	user_type, is_active, is_email_verified, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var userType string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone,
		&userType, &u.IsActive, &u.IsEmailVerified, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	u.UserType = domain.UserType(userType)
	return &u, nil
}

// GetUserByEmail fetches a user by email, case-insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// UpdateUserProfile persists the mutable profile fields.
func (r *Repository) UpdateUserProfile(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users
		SET first_name = $2, last_name = $3, phone = $4, updated_at = $5
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, user.ID, user.FirstName, user.LastName, user.Phone, time.Now().UTC())
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RecordLogin stamps last_login_at on the user row.
func (r *Repository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	const query = `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateSession inserts a session as a single atomic statement.
func (r *Repository) CreateSession(ctx context.Context, session *domain.Session) error {
	const query = `INSERT INTO sessions
		(id, user_id, token, device_info, ip_address, user_agent, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		session.ID, session.UserID, session.Token,
		session.DeviceInfo, session.IPAddress, session.UserAgent,
		session.IsActive, session.ExpiresAt, session.CreatedAt)
	return translateError(err)
}

const sessionColumns = `id, user_id, token, device_info, ip_address, user_agent,
	is_active, expires_at, last_accessed_at, created_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.DeviceInfo, &s.IPAddress, &s.UserAgent,
		&s.IsActive, &s.ExpiresAt, &s.LastAccessedAt, &s.CreatedAt); err != nil {
		return nil, translateError(err)
	}
	return &s, nil
}

// GetSessionByToken fetches a session by its opaque token.
func (r *Repository) GetSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token = $1`
	return scanSession(r.pool.QueryRow(ctx, query, token))
}

// GetSessionByID fetches a session by identifier.
func (r *Repository) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// TouchSession updates last_accessed_at for a still-valid session in one
// statement; the validity predicate lives in the WHERE clause so the
// read-modify-write is atomic at the storage layer.
func (r *Repository) TouchSession(ctx context.Context, token string, at time.Time) error {
	const query = `UPDATE sessions SET last_accessed_at = $2
		WHERE token = $1 AND is_active = TRUE AND expires_at >= $2`
	tag, err := r.pool.Exec(ctx, query, token, at)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RevokeSession flips is_active off. Revocation is terminal: there is no
// statement anywhere that sets is_active back to true.
func (r *Repository) RevokeSession(ctx context.Context, id string) error {
	const query = `UPDATE sessions SET is_active = FALSE WHERE id = $1 AND is_active = TRUE`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RevokeSessionsByUser revokes every active session owned by the user.
func (r *Repository) RevokeSessionsByUser(ctx context.Context, userID string) error {
	const query = `UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`
	_, err := r.pool.Exec(ctx, query, userID)
	return translateError(err)
}

// ListActiveSessionsByUser returns the user's currently valid sessions.
func (r *Repository) ListActiveSessionsByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = $1 AND is_active = TRUE AND expires_at >= NOW()
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Token, &s.DeviceInfo, &s.IPAddress, &s.UserAgent,
			&s.IsActive, &s.ExpiresAt, &s.LastAccessedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeactivateExpiredSessions sweeps sessions past their expiry.
func (r *Repository) DeactivateExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	const query = `UPDATE sessions SET is_active = FALSE
		WHERE is_active = TRUE AND expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, translateError(err)
	}
	return tag.RowsAffected(), nil
}

// CreateTenant inserts a tenant record.
func (r *Repository) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	settings, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("encode tenant settings: %w", err)
	}
	const query = `INSERT INTO tenants (id, name, slug, domain, settings, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`
	_, err = r.pool.Exec(ctx, query,
		tenant.ID, tenant.Name, tenant.Slug, tenant.Domain, settings,
		tenant.CreatedAt, tenant.UpdatedAt)
	return translateError(err)
}

const tenantColumns = `id, name, slug, COALESCE(domain, ''), settings, created_at, updated_at`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	var settings []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Domain, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	if err := json.Unmarshal(settings, &t.Settings); err != nil {
		return nil, fmt.Errorf("decode tenant settings: %w", err)
	}
	return &t, nil
}

// GetTenantByID returns a tenant by identifier.
func (r *Repository) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(r.pool.QueryRow(ctx, query, id))
}

// GetTenantBySlug returns a tenant by its unique slug.
func (r *Repository) GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	return scanTenant(r.pool.QueryRow(ctx, query, slug))
}

// UpdateTenantSettings replaces the settings blob.
func (r *Repository) UpdateTenantSettings(ctx context.Context, id string, settings domain.TenantSettings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode tenant settings: %w", err)
	}
	const query = `UPDATE tenants SET settings = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, encoded, time.Now().UTC())
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpsertMember adds a member to a tenant or updates the existing row; the
// (tenant_id, user_id) pair stays unique either way.
func (r *Repository) UpsertMember(ctx context.Context, member *domain.TenantMember) error {
	permissions, err := json.Marshal(member.Permissions)
	if err != nil {
		return fmt.Errorf("encode member permissions: %w", err)
	}
	const query = `INSERT INTO tenant_users (id, tenant_id, user_id, role, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, permissions = EXCLUDED.permissions, updated_at = EXCLUDED.updated_at`
	_, err = r.pool.Exec(ctx, query,
		member.ID, member.TenantID, member.UserID,
		string(member.Role), permissions, member.CreatedAt, member.UpdatedAt)
	return translateError(err)
}

const memberColumns = `id, tenant_id, user_id, role, permissions, created_at, updated_at`

func scanMember(row pgx.Row) (*domain.TenantMember, error) {
	var m domain.TenantMember
	var role string
	var permissions []byte
	if err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &role, &permissions, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	m.Role = domain.TenantRole(role)
	if err := json.Unmarshal(permissions, &m.Permissions); err != nil {
		return nil, fmt.Errorf("decode member permissions: %w", err)
	}
	return &m, nil
}

// GetMember fetches the membership row for a (tenant, user) pair.
func (r *Repository) GetMember(ctx context.Context, tenantID, userID string) (*domain.TenantMember, error) {
	query := `SELECT ` + memberColumns + ` FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`
	return scanMember(r.pool.QueryRow(ctx, query, tenantID, userID))
}

// ListMembers returns all memberships of a tenant.
func (r *Repository) ListMembers(ctx context.Context, tenantID string) ([]domain.TenantMember, error) {
	query := `SELECT ` + memberColumns + ` FROM tenant_users WHERE tenant_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	members := make([]domain.TenantMember, 0)
	for rows.Next() {
		var m domain.TenantMember
		var role string
		var permissions []byte
		if err := rows.Scan(&m.ID, &m.TenantID, &m.UserID, &role, &permissions, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.TenantRole(role)
		if err := json.Unmarshal(permissions, &m.Permissions); err != nil {
			return nil, fmt.Errorf("decode member permissions: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListTenantsByUser returns tenants the user belongs to.
func (r *Repository) ListTenantsByUser(ctx context.Context, userID string) ([]domain.Tenant, error) {
	query := `SELECT t.id, t.name, t.slug, COALESCE(t.domain, ''), t.settings, t.created_at, t.updated_at
		FROM tenants t
		INNER JOIN tenant_users tu ON tu.tenant_id = t.id
		WHERE tu.user_id = $1
		ORDER BY t.created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	tenants := make([]domain.Tenant, 0)
	for rows.Next() {
		var t domain.Tenant
		var settings []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Domain, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("decode tenant settings: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
