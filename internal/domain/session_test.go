package domain

import (
	"strings"
	"testing"
	"time"
)

func TestNewSessionIsValid(t *testing.T) {
	session := NewSession("user-1", 0)
	if !session.IsValid() {
		t.Fatalf("expected fresh session to be valid")
	}
	if !session.IsActive {
		t.Fatalf("expected fresh session to be active")
	}
	remaining := time.Until(session.ExpiresAt)
	if remaining < 29*24*time.Hour || remaining > 30*24*time.Hour {
		t.Fatalf("expected roughly 30 day expiry, got %v", remaining)
	}
	if !strings.HasPrefix(session.Token, "session_") {
		t.Fatalf("unexpected token format: %q", session.Token)
	}
	if strings.Contains(session.Token, "-") {
		t.Fatalf("token must not contain dashes: %q", session.Token)
	}
}

func TestSessionInvalidAfterExpiry(t *testing.T) {
	session := NewSession("user-1", time.Hour)
	session.ExpiresAt = time.Now().Add(-time.Second)
	if session.IsValid() {
		t.Fatalf("expected expired session to be invalid")
	}
	if !session.IsActive {
		t.Fatalf("expiry must not flip the active flag")
	}
}

func TestSessionInvalidAfterRevocation(t *testing.T) {
	session := NewSession("user-1", time.Hour)
	session.IsActive = false
	if session.IsValid() {
		t.Fatalf("expected revoked session to be invalid")
	}
}

func TestGenerateSessionTokenUnique(t *testing.T) {
	if GenerateSessionToken() == GenerateSessionToken() {
		t.Fatalf("expected unique session tokens")
	}
}

func TestDeviceDescription(t *testing.T) {
	cases := []struct {
		session Session
		want    string
	}{
		{Session{DeviceInfo: "Work laptop"}, "Work laptop"},
		{Session{UserAgent: "Mozilla/5.0 Chrome/120.0"}, "Chrome Browser"},
		{Session{UserAgent: "Mozilla/5.0 Firefox/121.0"}, "Firefox Browser"},
		{Session{UserAgent: "Mozilla/5.0 Safari/17.1"}, "Safari Browser"},
		{Session{UserAgent: "Mobile something"}, "Mobile Device"},
		{Session{}, "Unknown Device"},
	}
	for _, tc := range cases {
		if got := tc.session.DeviceDescription(); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}
