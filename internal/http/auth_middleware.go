package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/locoplatform/api/internal/domain"
	"github.com/locoplatform/api/internal/service/tenant"
	"github.com/locoplatform/api/internal/token"
)

type authContextKey string

const (
	contextKeyIdentity   authContextKey = "loco-identity"
	contextKeyMembership authContextKey = "loco-membership"

	sessionTokenHeader = "X-Session-Token"
)

// identity is the authenticated caller, as carried by the bearer token.
type identity struct {
	UserID   string
	Email    string
	UserType domain.UserType
}

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking
// the handler. Token validation is stateless; when the client also presents
// its opaque session token the session's last access is recorded, but a
// revoked session does not invalidate an outstanding bearer token.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, identity, bool) {
	raw, err := token.FromAuthHeader(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "path", req.URL.Path)
		r.recordAuthFailure("header")
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), identity{}, false
	}
	claims, err := r.tokens.Validate(raw)
	if err != nil {
		r.logger.Warn("token validation failed", "path", req.URL.Path)
		r.recordAuthFailure("token")
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return req.Context(), identity{}, false
	}
	ident := identity{
		UserID:   claims.UserID(),
		Email:    claims.Email,
		UserType: domain.UserType(claims.UserType),
	}
	if sessionToken := strings.TrimSpace(req.Header.Get(sessionTokenHeader)); sessionToken != "" {
		r.sessions.Touch(req.Context(), sessionToken)
	}
	ctx := context.WithValue(req.Context(), contextKeyIdentity, ident)
	return ctx, ident, true
}

// identityFromContext extracts the authenticated caller from context.
func identityFromContext(ctx context.Context) (identity, bool) {
	value := ctx.Value(contextKeyIdentity)
	if value == nil {
		return identity{}, false
	}
	ident, ok := value.(identity)
	return ident, ok
}

// requireSuperAdmin gates platform-level operations on the account type
// carried in the token.
func (r *Router) requireSuperAdmin(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(func(w http.ResponseWriter, req *http.Request) {
		ident, ok := identityFromContext(req.Context())
		if !ok || ident.UserType != domain.UserTypeSuperAdmin {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		next(w, req)
	})
}

// resolveMembership binds the authenticated caller to the tenant in the
// request path. Non-members get 403, never a hint whether the tenant exists.
func (r *Router) resolveMembership(w http.ResponseWriter, req *http.Request, tenantID string) (*tenant.Membership, bool) {
	ident, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for tenant route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return nil, false
	}
	membership, err := r.tenants.Resolve(req.Context(), ident.UserID, tenantID)
	if err != nil {
		r.respondServiceError(w, req, err)
		return nil, false
	}
	ctx := context.WithValue(req.Context(), contextKeyMembership, membership)
	if setter, ok := w.(contextSetter); ok {
		setter.SetContext(ctx)
	}
	return membership, true
}

func membershipFromContext(ctx context.Context) (*tenant.Membership, bool) {
	value := ctx.Value(contextKeyMembership)
	if value == nil {
		return nil, false
	}
	membership, ok := value.(*tenant.Membership)
	return membership, ok
}

// requireTenantRole rejects members whose role does not satisfy the
// required minimum.
func (r *Router) requireTenantRole(w http.ResponseWriter, membership *tenant.Membership, required domain.TenantRole) bool {
	if !membership.Role.Satisfies(required) {
		r.logger.Warn("tenant role check failed",
			"tenant_id", membership.TenantID,
			"user_id", membership.UserID,
			"held", membership.Role,
			"required", required)
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}

// requirePermission rejects members lacking the exact named permission.
func (r *Router) requirePermission(w http.ResponseWriter, membership *tenant.Membership, name string) bool {
	if !membership.HasPermission(name) {
		r.logger.Warn("tenant permission check failed",
			"tenant_id", membership.TenantID,
			"user_id", membership.UserID,
			"permission", name)
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}
