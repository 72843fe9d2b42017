package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/locoplatform/api/internal/apperr"
	"github.com/locoplatform/api/internal/crypto"
	"github.com/locoplatform/api/internal/domain"
	"github.com/locoplatform/api/internal/repository"
	"github.com/locoplatform/api/internal/service/session"
	"github.com/locoplatform/api/internal/token"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTokens(t *testing.T) token.Service {
	t.Helper()
	svc, err := token.NewService("auth-service-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	return svc
}

type userRepoMock struct {
	createFunc        func(ctx context.Context, user *domain.User) error
	getByEmailFunc    func(ctx context.Context, email string) (*domain.User, error)
	getByIDFunc       func(ctx context.Context, id string) (*domain.User, error)
	updateProfileFunc func(ctx context.Context, user *domain.User) error
	recordLoginFunc   func(ctx context.Context, userID string, at time.Time) error
}

func (m userRepoMock) CreateUser(ctx context.Context, user *domain.User) error {
	if m.createFunc == nil {
		return nil
	}
	return m.createFunc(ctx, user)
}

func (m userRepoMock) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getByEmailFunc == nil {
		return nil, repository.ErrNotFound
	}
	return m.getByEmailFunc(ctx, email)
}

func (m userRepoMock) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if m.getByIDFunc == nil {
		return nil, repository.ErrNotFound
	}
	return m.getByIDFunc(ctx, id)
}

func (m userRepoMock) UpdateUserProfile(ctx context.Context, user *domain.User) error {
	if m.updateProfileFunc == nil {
		return nil
	}
	return m.updateProfileFunc(ctx, user)
}

func (m userRepoMock) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	if m.recordLoginFunc == nil {
		return nil
	}
	return m.recordLoginFunc(ctx, userID, at)
}

type sessionRepoMock struct {
	createFunc func(ctx context.Context, sess *domain.Session) error
	revokeAll  func(ctx context.Context, userID string) error
}

func (m sessionRepoMock) CreateSession(ctx context.Context, sess *domain.Session) error {
	if m.createFunc == nil {
		return nil
	}
	return m.createFunc(ctx, sess)
}

func (m sessionRepoMock) GetSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	return nil, repository.ErrNotFound
}

func (m sessionRepoMock) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	return nil, repository.ErrNotFound
}

func (m sessionRepoMock) TouchSession(ctx context.Context, token string, at time.Time) error {
	return repository.ErrNotFound
}

func (m sessionRepoMock) RevokeSession(ctx context.Context, id string) error {
	return nil
}

func (m sessionRepoMock) RevokeSessionsByUser(ctx context.Context, userID string) error {
	if m.revokeAll == nil {
		return nil
	}
	return m.revokeAll(ctx, userID)
}

func (m sessionRepoMock) ListActiveSessionsByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	return nil, nil
}

func (m sessionRepoMock) DeactivateExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func newService(t *testing.T, users userRepoMock, sessions sessionRepoMock) Service {
	t.Helper()
	sessionSvc := session.New(sessions, newLogger(), time.Hour, time.Hour)
	return New(users, sessionSvc, newTokens(t), newLogger(), 2)
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Email:     "Michael.Chen@Example.com.au",
		Password:  "locum-pharmacist-1",
		FirstName: "Michael",
		LastName:  "Chen",
		UserType:  "Professional",
	}
}

func TestRegisterCreatesUserAndIssuesToken(t *testing.T) {
	var created *domain.User
	users := userRepoMock{
		createFunc: func(_ context.Context, user *domain.User) error {
			created = user
			return nil
		},
	}
	svc := newService(t, users, sessionRepoMock{})

	user, signed, err := svc.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created == nil {
		t.Fatalf("expected user persisted")
	}
	if user.Email != "michael.chen@example.com.au" {
		t.Fatalf("expected lowercased email, got %q", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "locum-pharmacist-1" {
		t.Fatalf("expected hashed password")
	}
	if !user.IsActive {
		t.Fatalf("expected new user active")
	}
	if user.IsEmailVerified {
		t.Fatalf("expected new user unverified")
	}

	claims, err := newTokens(t).Validate(signed)
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if claims.UserID() != user.ID || claims.Email != user.Email {
		t.Fatalf("token claims do not match user")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(t, userRepoMock{}, sessionRepoMock{})
	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		field  string
	}{
		{"missing email", func(in *RegisterInput) { in.Email = "" }, "email"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"short password", func(in *RegisterInput) { in.Password = "short" }, "password"},
		{"missing first name", func(in *RegisterInput) { in.FirstName = " " }, "first_name"},
		{"missing last name", func(in *RegisterInput) { in.LastName = "" }, "last_name"},
		{"unknown user type", func(in *RegisterInput) { in.UserType = "Guest" }, "user_type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validRegisterInput()
			tc.mutate(&input)
			_, _, err := svc.Register(context.Background(), input)
			ve, ok := apperr.AsValidation(err)
			if !ok {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, ve.Field)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users := userRepoMock{
		createFunc: func(_ context.Context, _ *domain.User) error {
			return repository.ErrConflict
		},
	}
	svc := newService(t, users, sessionRepoMock{})
	_, _, err := svc.Register(context.Background(), validRegisterInput())
	if _, ok := apperr.AsValidation(err); !ok {
		t.Fatalf("expected validation error for duplicate email, got %v", err)
	}
}

func storedUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &domain.User{
		ID:           "user-1",
		Email:        "michael.chen@example.com.au",
		PasswordHash: hash,
		FirstName:    "Michael",
		LastName:     "Chen",
		UserType:     domain.UserTypeProfessional,
		IsActive:     true,
	}
}

func TestLoginSuccess(t *testing.T) {
	user := storedUser(t, "locum-pharmacist-1")
	var loginRecorded bool
	var sessionCreated *domain.Session
	users := userRepoMock{
		getByEmailFunc: func(_ context.Context, email string) (*domain.User, error) {
			if email != user.Email {
				t.Fatalf("unexpected email lookup: %s", email)
			}
			copied := *user
			return &copied, nil
		},
		recordLoginFunc: func(_ context.Context, userID string, _ time.Time) error {
			if userID != user.ID {
				t.Fatalf("unexpected login record for %s", userID)
			}
			loginRecorded = true
			return nil
		},
	}
	sessions := sessionRepoMock{
		createFunc: func(_ context.Context, sess *domain.Session) error {
			sessionCreated = sess
			return nil
		},
	}
	svc := newService(t, users, sessions)

	result, err := svc.Login(context.Background(), "Michael.Chen@Example.com.au", "locum-pharmacist-1", session.Meta{UserAgent: "Chrome"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !loginRecorded {
		t.Fatalf("expected last login recorded")
	}
	if sessionCreated == nil || sessionCreated.UserID != user.ID {
		t.Fatalf("expected session created for user")
	}
	if sessionCreated.UserAgent != "Chrome" {
		t.Fatalf("expected session metadata stored")
	}
	if result.SessionToken != sessionCreated.Token {
		t.Fatalf("expected session token returned")
	}
	if result.User.LastLoginAt == nil {
		t.Fatalf("expected last login stamped on returned user")
	}
	if _, err := newTokens(t).Validate(result.Token); err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	user := storedUser(t, "locum-pharmacist-1")
	users := userRepoMock{
		getByEmailFunc: func(_ context.Context, _ string) (*domain.User, error) {
			copied := *user
			return &copied, nil
		},
	}
	svc := newService(t, users, sessionRepoMock{})
	_, err := svc.Login(context.Background(), user.Email, "wrong-password", session.Meta{})
	if !errors.Is(err, apperr.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestLoginUnknownEmailSameFailure(t *testing.T) {
	svc := newService(t, userRepoMock{}, sessionRepoMock{})
	_, err := svc.Login(context.Background(), "nobody@example.com.au", "whatever-password", session.Meta{})
	if !errors.Is(err, apperr.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	user := storedUser(t, "locum-pharmacist-1")
	user.IsActive = false
	users := userRepoMock{
		getByEmailFunc: func(_ context.Context, _ string) (*domain.User, error) {
			copied := *user
			return &copied, nil
		},
	}
	svc := newService(t, users, sessionRepoMock{})
	_, err := svc.Login(context.Background(), user.Email, "locum-pharmacist-1", session.Meta{})
	if !errors.Is(err, apperr.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed for inactive account, got %v", err)
	}
}

func TestLoginCorruptStoredHash(t *testing.T) {
	user := storedUser(t, "locum-pharmacist-1")
	user.PasswordHash = "not-a-phc-string"
	users := userRepoMock{
		getByEmailFunc: func(_ context.Context, _ string) (*domain.User, error) {
			copied := *user
			return &copied, nil
		},
	}
	svc := newService(t, users, sessionRepoMock{})
	_, err := svc.Login(context.Background(), user.Email, "locum-pharmacist-1", session.Meta{})
	if !errors.Is(err, apperr.ErrHashingFailed) {
		t.Fatalf("expected ErrHashingFailed for corrupt hash, got %v", err)
	}
}

func TestRefreshReissuesForSameClaims(t *testing.T) {
	user := storedUser(t, "locum-pharmacist-1")
	users := userRepoMock{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			if id != user.ID {
				return nil, repository.ErrNotFound
			}
			copied := *user
			return &copied, nil
		},
	}
	svc := newService(t, users, sessionRepoMock{})

	tokens := newTokens(t)
	original, err := tokens.Issue(user.ID, user.Email, user.UserType)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	refreshed, err := svc.Refresh(context.Background(), original)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := tokens.Validate(refreshed)
	if err != nil {
		t.Fatalf("validate refreshed: %v", err)
	}
	if claims.UserID() != user.ID || claims.Email != user.Email {
		t.Fatalf("refreshed claims do not match user")
	}
}

func TestRefreshRejectsInvalidToken(t *testing.T) {
	svc := newService(t, userRepoMock{}, sessionRepoMock{})
	if _, err := svc.Refresh(context.Background(), "garbage"); !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRefreshRejectsDeletedUser(t *testing.T) {
	svc := newService(t, userRepoMock{}, sessionRepoMock{})
	signed, err := newTokens(t).Issue("ghost", "ghost@example.com.au", domain.UserTypeEmployer)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), signed); !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for deleted user, got %v", err)
	}
}

func TestLogoutRevokesAllWithoutSessionToken(t *testing.T) {
	var revokedUser string
	sessions := sessionRepoMock{
		revokeAll: func(_ context.Context, userID string) error {
			revokedUser = userID
			return nil
		},
	}
	svc := newService(t, userRepoMock{}, sessions)
	if err := svc.Logout(context.Background(), "user-1", ""); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if revokedUser != "user-1" {
		t.Fatalf("expected all sessions revoked for user-1, got %q", revokedUser)
	}
}

func TestUpdateProfile(t *testing.T) {
	user := storedUser(t, "locum-pharmacist-1")
	var updated *domain.User
	users := userRepoMock{
		getByIDFunc: func(_ context.Context, _ string) (*domain.User, error) {
			copied := *user
			return &copied, nil
		},
		updateProfileFunc: func(_ context.Context, u *domain.User) error {
			updated = u
			return nil
		},
	}
	svc := newService(t, users, sessionRepoMock{})
	result, err := svc.UpdateProfile(context.Background(), user.ID, ProfileUpdate{FirstName: "Ming", Phone: "0400 000 000"})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated == nil {
		t.Fatalf("expected profile persisted")
	}
	if result.FirstName != "Ming" || result.LastName != "Chen" {
		t.Fatalf("unexpected name after update: %s %s", result.FirstName, result.LastName)
	}
	if result.Phone != "0400 000 000" {
		t.Fatalf("unexpected phone after update: %s", result.Phone)
	}
}
