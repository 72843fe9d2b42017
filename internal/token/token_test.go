package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/locoplatform/api/internal/apperr"
	"github.com/locoplatform/api/internal/domain"
)

const testSecret = "unit-test-secret"

func newService(t *testing.T, ttl time.Duration) Service {
	t.Helper()
	svc, err := NewService(testSecret, ttl)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestIssueValidateRoundTrip(t *testing.T) {
	svc := newService(t, time.Hour)
	signed, err := svc.Issue("user-1", "chen@example.com.au", domain.UserTypeProfessional)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if parts := strings.Split(signed, "."); len(parts) != 3 {
		t.Fatalf("expected compact JWT with three segments, got %d", len(parts))
	}

	claims, err := svc.Validate(signed)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID() != "user-1" {
		t.Fatalf("unexpected subject: %s", claims.UserID())
	}
	if claims.Email != "chen@example.com.au" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if claims.UserType != string(domain.UserTypeProfessional) {
		t.Fatalf("unexpected user type: %s", claims.UserType)
	}
	gap := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if gap != time.Hour {
		t.Fatalf("expected exp = iat + ttl, got gap %v", gap)
	}
}

func TestValidateNearExpiryBoundary(t *testing.T) {
	svc := newService(t, time.Second)
	signed, err := svc.Issue("user-1", "chen@example.com.au", domain.UserTypeProfessional)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Validated well before exp: accepted.
	if _, err := svc.Validate(signed); err != nil {
		t.Fatalf("expected fresh token to validate: %v", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := newService(t, time.Hour)
	now := time.Now()
	claims := Claims{
		Email:    "chen@example.com.au",
		UserType: string(domain.UserTypeProfessional),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwtlib.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(-time.Second)),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Validate(signed); !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidateWrongSecret(t *testing.T) {
	svc := newService(t, time.Hour)
	other, err := NewService("different-secret", time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	signed, err := other.Issue("user-1", "chen@example.com.au", domain.UserTypeEmployer)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Validate(signed); !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for forged signature, got %v", err)
	}
}

func TestValidateMalformedToken(t *testing.T) {
	svc := newService(t, time.Hour)
	for _, token := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		if _, err := svc.Validate(token); !errors.Is(err, apperr.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", token, err)
		}
	}
}

func TestValidateRejectsMissingClaims(t *testing.T) {
	svc := newService(t, time.Hour)
	now := time.Now()
	claims := Claims{
		// No email or user type.
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Validate(signed); !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for missing claims, got %v", err)
	}
}

func TestValidateRejectsUnexpectedAlgorithm(t *testing.T) {
	svc := newService(t, time.Hour)
	now := time.Now()
	claims := Claims{
		Email:    "chen@example.com.au",
		UserType: string(domain.UserTypeProfessional),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS384, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Validate(signed); !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for HS384 token, got %v", err)
	}
}

func TestFromAuthHeader(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Token abc", "", false},
		{"abc", "", false},
		{"", "", false},
		{"Bearer ", "", false},
		{"bearer abc", "", false},
	}
	for _, tc := range cases {
		token, err := FromAuthHeader(tc.header)
		if tc.ok {
			if err != nil {
				t.Fatalf("header %q: unexpected error %v", tc.header, err)
			}
			if token != tc.token {
				t.Fatalf("header %q: expected token %q, got %q", tc.header, tc.token, token)
			}
			continue
		}
		if !errors.Is(err, apperr.ErrInvalidToken) {
			t.Fatalf("header %q: expected ErrInvalidToken, got %v", tc.header, err)
		}
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService("", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
