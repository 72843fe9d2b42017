// Package session manages the revocable session records that back the
// user-visible "active sessions" view. Sessions are independent of the
// stateless bearer tokens: revoking one never invalidates the other.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/locoplatform/api/internal/apperr"
	"github.com/locoplatform/api/internal/domain"
	"github.com/locoplatform/api/internal/repository"
)

// Meta captures request metadata stored alongside a session.
type Meta struct {
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// Service handles the session lifecycle.
type Service struct {
	repo       repository.SessionRepository
	logger     *slog.Logger
	ttl        time.Duration
	sweepEvery time.Duration
}

// New constructs a Service. ttl defaults to 30 days, sweepEvery to 15
// minutes when zero.
func New(repo repository.SessionRepository, logger *slog.Logger, ttl, sweepEvery time.Duration) Service {
	if ttl <= 0 {
		ttl = domain.SessionDefaultTTL
	}
	if sweepEvery <= 0 {
		sweepEvery = 15 * time.Minute
	}
	return Service{repo: repo, logger: logger, ttl: ttl, sweepEvery: sweepEvery}
}

// Create opens a session for the user. The insert is a single statement so
// an aborted request leaves either a complete session or nothing.
func (s Service) Create(ctx context.Context, userID string, meta Meta) (*domain.Session, error) {
	sess := domain.NewSession(userID, s.ttl)
	sess.DeviceInfo = meta.DeviceInfo
	sess.IPAddress = meta.IPAddress
	sess.UserAgent = meta.UserAgent
	if err := s.repo.CreateSession(ctx, &sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &sess, nil
}

// Touch records use of a valid session. A miss (revoked, expired or
// unknown token) is not an error worth failing the request over; it is
// logged and swallowed.
func (s Service) Touch(ctx context.Context, token string) {
	err := s.repo.TouchSession(ctx, token, time.Now().UTC())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("session touch failed", "error", err)
	}
}

// Validate looks the session up by token and applies the validity rule.
func (s Service) Validate(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := s.repo.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if !sess.IsValid() {
		return nil, apperr.ErrNotFound
	}
	return sess, nil
}

// Revoke invalidates one of the caller's sessions by id. Sessions owned by
// other users are reported as absent, never as forbidden.
func (s Service) Revoke(ctx context.Context, userID, sessionID string) error {
	sess, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("lookup session: %w", err)
	}
	if sess.UserID != userID {
		return apperr.ErrNotFound
	}
	if err := s.repo.RevokeSession(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	s.logger.Info("session revoked", "user_id", userID, "session_id", sessionID)
	return nil
}

// RevokeByToken invalidates the caller's session matching the opaque token.
func (s Service) RevokeByToken(ctx context.Context, userID, token string) error {
	sess, err := s.repo.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("lookup session: %w", err)
	}
	if sess.UserID != userID {
		return apperr.ErrNotFound
	}
	return s.Revoke(ctx, userID, sess.ID)
}

// RevokeAll invalidates every active session of the user.
func (s Service) RevokeAll(ctx context.Context, userID string) error {
	if err := s.repo.RevokeSessionsByUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.logger.Info("all sessions revoked", "user_id", userID)
	return nil
}

// List returns the user's valid sessions, newest first.
func (s Service) List(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := s.repo.ListActiveSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Run sweeps expired sessions until the context is cancelled. Validity is
// already enforced lazily at read time; the sweep keeps the table tidy and
// makes expiry visible in the sessions list without waiting for a read.
func (s Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := s.repo.DeactivateExpiredSessions(ctx, time.Now().UTC())
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("session sweep failed", "error", err)
				}
				continue
			}
			if swept > 0 {
				s.logger.Info("expired sessions swept", "count", swept)
			}
		}
	}
}
