// Package auth handles registration, login and profile workflows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/locoplatform/api/internal/apperr"
	"github.com/locoplatform/api/internal/crypto"
	"github.com/locoplatform/api/internal/domain"
	"github.com/locoplatform/api/internal/repository"
	"github.com/locoplatform/api/internal/service/session"
	"github.com/locoplatform/api/internal/token"
)

const minPasswordLength = 8

// Service handles authentication workflows. Password hashing is memory-hard
// and deliberately slow, so it runs behind a bounded semaphore to keep a
// burst of signups from starving unrelated requests.
type Service struct {
	users    repository.UserRepository
	sessions session.Service
	tokens   token.Service
	logger   *slog.Logger
	hashSem  *semaphore.Weighted
}

// New constructs a Service. hashConcurrency caps concurrent argon2 work.
func New(users repository.UserRepository, sessions session.Service, tokens token.Service, logger *slog.Logger, hashConcurrency int) Service {
	if hashConcurrency <= 0 {
		hashConcurrency = 4
	}
	return Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
		hashSem:  semaphore.NewWeighted(int64(hashConcurrency)),
	}
}

// RegisterInput is the registration payload after JSON decoding.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	UserType  string
}

// LoginResult bundles everything a successful login returns.
type LoginResult struct {
	User         *domain.User
	Token        string
	SessionToken string
}

// Register validates the payload, hashes the password and creates the user,
// returning the user and a fresh bearer token.
func (s Service) Register(ctx context.Context, input RegisterInput) (*domain.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", apperr.Validation("email", "a valid email address is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, "", apperr.Validation("password", "password must be at least 8 characters")
	}
	if strings.TrimSpace(input.FirstName) == "" {
		return nil, "", apperr.Validation("first_name", "first name is required")
	}
	if strings.TrimSpace(input.LastName) == "" {
		return nil, "", apperr.Validation("last_name", "last name is required")
	}
	userType, ok := domain.ParseUserType(input.UserType)
	if !ok {
		return nil, "", apperr.Validation("user_type", "unknown user type")
	}

	hash, err := s.hashPassword(ctx, input.Password)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Phone:        strings.TrimSpace(input.Phone),
		UserType:     userType,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, "", apperr.Validation("email", "email is already registered")
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	signed, err := s.tokens.Issue(user.ID, user.Email, user.UserType)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", "user_id", user.ID, "user_type", user.UserType)
	return user, signed, nil
}

// Login verifies credentials and, on success, records the login, opens a
// revocable session and issues a bearer token. Unknown email, wrong password
// and deactivated account all surface as the same ErrAuthenticationFailed.
func (s Service) Login(ctx context.Context, email, password string, meta session.Meta) (*LoginResult, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn a verification anyway so response timing does not
			// reveal whether the email exists.
			crypto.VerifyDummy(password)
			s.logger.Warn("login attempt for unknown email")
			return nil, apperr.ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.verifyPassword(ctx, password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, err
	}
	if !ok {
		s.logger.Warn("login attempt with wrong password", "user_id", user.ID)
		return nil, apperr.ErrAuthenticationFailed
	}
	if !user.IsActive {
		s.logger.Warn("login attempt for deactivated account", "user_id", user.ID)
		return nil, apperr.ErrAuthenticationFailed
	}

	now := time.Now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.LastLoginAt = &now

	sess, err := s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	signed, err := s.tokens.Issue(user.ID, user.Email, user.UserType)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "session_id", sess.ID)
	return &LoginResult{User: user, Token: signed, SessionToken: sess.Token}, nil
}

// Logout revokes the named session when a session token is supplied, or all
// of the caller's sessions otherwise. The stateless bearer token is NOT
// invalidated and remains usable until its natural expiry; the session store
// is the only revocable surface.
func (s Service) Logout(ctx context.Context, userID, sessionToken string) error {
	if sessionToken != "" {
		return s.sessions.RevokeByToken(ctx, userID, sessionToken)
	}
	return s.sessions.RevokeAll(ctx, userID)
}

// Refresh validates the presented token and reissues a fresh one for the
// same claims. No distinct refresh tokens are persisted.
func (s Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Validate(refreshToken)
	if err != nil {
		return "", err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperr.ErrInvalidToken
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return "", apperr.ErrInvalidToken
	}
	return s.tokens.Issue(user.ID, user.Email, user.UserType)
}

// Profile loads the caller's account.
func (s Service) Profile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// ProfileUpdate carries the mutable profile fields.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Phone     string
}

// UpdateProfile persists profile changes for the caller.
func (s Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*domain.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(update.FirstName) != "" {
		user.FirstName = strings.TrimSpace(update.FirstName)
	}
	if strings.TrimSpace(update.LastName) != "" {
		user.LastName = strings.TrimSpace(update.LastName)
	}
	if strings.TrimSpace(update.Phone) != "" {
		user.Phone = strings.TrimSpace(update.Phone)
	}
	if err := s.users.UpdateUserProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.logger.Info("profile updated", "user_id", userID)
	return user, nil
}

func (s Service) hashPassword(ctx context.Context, plain string) (string, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.hashSem.Release(1)
	return crypto.HashPassword(plain)
}

func (s Service) verifyPassword(ctx context.Context, plain, encoded string) (bool, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer s.hashSem.Release(1)
	return crypto.VerifyPassword(plain, encoded)
}
