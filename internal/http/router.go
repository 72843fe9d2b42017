package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/locoplatform/api/internal/domain"
	"github.com/locoplatform/api/internal/service/auth"
	"github.com/locoplatform/api/internal/service/session"
	"github.com/locoplatform/api/internal/service/tenant"
	"github.com/locoplatform/api/internal/token"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	sessions session.Service
	tenants  tenant.Service
	tokens   token.Service
	limiter  RateLimiter
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	authFailures       *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitRefresh   = 30
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, sessionSvc session.Service, tenantSvc tenant.Service, tokens token.Service, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		sessions: sessionSvc,
		tenants:  tenantSvc,
		tokens:   tokens,
		limiter:  limiter,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/register", r.audit(r.withRateLimit("/auth/register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/auth/login", r.audit(r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/logout", r.audit(r.handlerAuthRate("/auth/logout", rateLimitUserWrite, rateWindowDefault, r.handleLogout)))
	r.mux.HandleFunc("/auth/refresh", r.audit(r.withRateLimit("/auth/refresh", rateLimitRefresh, rateWindowDefault, rateLimitKeyIP, r.handleRefresh)))
	r.mux.HandleFunc("/auth/sessions", r.audit(r.handlerAuthRate("/auth/sessions", rateLimitUserRead, rateWindowDefault, r.handleSessions)))
	r.mux.HandleFunc("/auth/sessions/", r.audit(r.handlerAuthRate("/auth/sessions/{id}", rateLimitUserWrite, rateWindowDefault, r.handleSessionByID)))
	r.mux.HandleFunc("/profile", r.audit(r.handlerAuthRate("/profile", rateLimitUserRead, rateWindowDefault, r.handleProfile)))
	r.mux.HandleFunc("/tenants", r.audit(r.handleTenants))
	r.mux.HandleFunc("/tenants/", r.audit(r.handlerAuthRate("/tenants/{id}", rateLimitUserRead, rateWindowDefault, r.handleTenantSubroutes)))
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		UserType  string `json:"user_type"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, signed, err := r.auth.Register(req.Context(), auth.RegisterInput{
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Phone:     payload.Phone,
		UserType:  payload.UserType,
	})
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token": signed,
		"user":  user.Public(),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	meta := session.Meta{
		DeviceInfo: strings.TrimSpace(req.Header.Get("X-Device-Info")),
		IPAddress:  clientIP(req),
		UserAgent:  req.UserAgent(),
	}
	result, err := r.auth.Login(req.Context(), payload.Email, payload.Password, meta)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":         result.Token,
		"session_token": result.SessionToken,
		"user":          result.User.Public(),
	})
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	ident, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for logout", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload struct {
		SessionToken string `json:"session_token"`
	}
	if req.Body != nil {
		// Body is optional; absence means revoke everything.
		_ = json.NewDecoder(req.Body).Decode(&payload)
	}
	if err := r.auth.Logout(req.Context(), ident.UserID, strings.TrimSpace(payload.SessionToken)); err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	signed, err := r.auth.Refresh(req.Context(), payload.RefreshToken)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": signed})
}

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	ident, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for profile", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodGet:
		user, err := r.auth.Profile(req.Context(), ident.UserID)
		if err != nil {
			r.respondServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, user.Public())
	case http.MethodPut:
		var payload struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Phone     string `json:"phone"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, err := r.auth.UpdateProfile(req.Context(), ident.UserID, auth.ProfileUpdate{
			FirstName: payload.FirstName,
			LastName:  payload.LastName,
			Phone:     payload.Phone,
		})
		if err != nil {
			r.respondServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, user.Public())
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSessions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	ident, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for sessions list", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	sessions, err := r.sessions.List(req.Context(), ident.UserID)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	payload := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		payload = append(payload, sessionPayload(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": payload})
}

func (r *Router) handleSessionByID(w http.ResponseWriter, req *http.Request) {
	sessionID := strings.TrimPrefix(req.URL.Path, "/auth/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	ident, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for session revocation", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if err := r.sessions.Revoke(req.Context(), ident.UserID, sessionID); err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleTenants(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		r.requireSuperAdmin(r.withRateLimit("/tenants", rateLimitUserWrite, rateWindowDefault, rateLimitKeyUser, r.handleTenantCreate))(w, req)
	case http.MethodGet:
		r.handlerAuthRate("/tenants", rateLimitUserRead, rateWindowDefault, r.handleTenantList)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTenantCreate(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Name    string `json:"name"`
		Slug    string `json:"slug"`
		Domain  string `json:"domain"`
		OwnerID string `json:"owner_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ident, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for tenant creation", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	ownerID := strings.TrimSpace(payload.OwnerID)
	if ownerID == "" {
		ownerID = ident.UserID
	}
	created, err := r.tenants.Create(req.Context(), tenant.CreateInput{
		Name:    payload.Name,
		Slug:    payload.Slug,
		Domain:  payload.Domain,
		OwnerID: ownerID,
	})
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenantPayload(*created))
}

func (r *Router) handleTenantList(w http.ResponseWriter, req *http.Request) {
	ident, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for tenant list", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	tenants, err := r.tenants.ListForUser(req.Context(), ident.UserID)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	payload := make([]map[string]any, 0, len(tenants))
	for _, t := range tenants {
		payload = append(payload, tenantPayload(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": payload})
}

func (r *Router) handleTenantSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/tenants/")
	parts := strings.Split(trimmed, "/")
	tenantID := parts[0]
	if tenantID == "" {
		r.notFound(w)
		return
	}
	membership, ok := r.resolveMembership(w, req, tenantID)
	if !ok {
		return
	}
	switch {
	case len(parts) == 1:
		r.handleTenantGet(w, req, tenantID)
	case len(parts) == 2 && parts[1] == "settings":
		r.handleTenantSettings(w, req, tenantID, membership)
	case len(parts) == 2 && parts[1] == "members":
		r.handleTenantMembers(w, req, tenantID, membership)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleTenantGet(w http.ResponseWriter, req *http.Request, tenantID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	found, err := r.tenants.Get(req.Context(), tenantID)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, tenantPayload(*found))
}

func (r *Router) handleTenantSettings(w http.ResponseWriter, req *http.Request, tenantID string, membership *tenant.Membership) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	if !r.requireTenantRole(w, membership, domain.TenantRoleOwner) {
		return
	}
	var settings domain.TenantSettings
	if err := json.NewDecoder(req.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.tenants.UpdateSettings(req.Context(), tenantID, settings); err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (r *Router) handleTenantMembers(w http.ResponseWriter, req *http.Request, tenantID string, membership *tenant.Membership) {
	switch req.Method {
	case http.MethodGet:
		if !r.requirePermission(w, membership, "members:view") {
			return
		}
		members, err := r.tenants.Members(req.Context(), tenantID)
		if err != nil {
			r.respondServiceError(w, req, err)
			return
		}
		payload := make([]map[string]any, 0, len(members))
		for _, m := range members {
			payload = append(payload, memberPayload(m))
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": payload})
	case http.MethodPost:
		if !r.requireTenantRole(w, membership, domain.TenantRoleAdmin) {
			return
		}
		var payload struct {
			UserID      string   `json:"user_id"`
			Role        string   `json:"role"`
			Permissions []string `json:"permissions"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		member, err := r.tenants.AddMember(req.Context(), tenantID, tenant.AddMemberInput{
			UserID:      payload.UserID,
			Role:        payload.Role,
			Permissions: payload.Permissions,
		})
		if err != nil {
			r.respondServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, memberPayload(*member))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func sessionPayload(s domain.Session) map[string]any {
	payload := map[string]any{
		"id":         s.ID,
		"device":     s.DeviceDescription(),
		"ip_address": s.IPAddress,
		"created_at": s.CreatedAt,
		"expires_at": s.ExpiresAt,
	}
	if s.LastAccessedAt != nil {
		payload["last_accessed_at"] = *s.LastAccessedAt
	}
	return payload
}

func tenantPayload(t domain.Tenant) map[string]any {
	return map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"slug":       t.Slug,
		"domain":     t.Domain,
		"settings":   t.Settings,
		"created_at": t.CreatedAt,
		"updated_at": t.UpdatedAt,
	}
}

func memberPayload(m domain.TenantMember) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"tenant_id":   m.TenantID,
		"user_id":     m.UserID,
		"role":        m.Role,
		"permissions": m.EffectivePermissions(),
		"created_at":  m.CreatedAt,
	}
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, routeLabel(req.URL.Path), status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if ident, ok := identityFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", ident.UserID, "user_type", ident.UserType)
		}
		if membership, ok := membershipFromContext(ctx); ok {
			fields = append(fields, "tenant_id", membership.TenantID, "tenant_role", membership.Role)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

// routeLabel collapses path parameters so metric cardinality stays bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/auth/sessions/"):
		return "/auth/sessions/{id}"
	case strings.HasPrefix(path, "/tenants/"):
		trimmed := strings.TrimPrefix(path, "/tenants/")
		if idx := strings.IndexRune(trimmed, '/'); idx >= 0 {
			return "/tenants/{id}" + trimmed[idx:]
		}
		return "/tenants/{id}"
	default:
		return path
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
