package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is a server-tracked, revocable record of an authenticated device,
// distinct from the stateless bearer token. Its default lifetime is 30 days.
const SessionDefaultTTL = 30 * 24 * time.Hour

type Session struct {
	ID             string
	UserID         string
	Token          string
	DeviceInfo     string
	IPAddress      string
	UserAgent      string
	IsActive       bool
	ExpiresAt      time.Time
	LastAccessedAt *time.Time
	CreatedAt      time.Time
}

// NewSession builds an active session for the user with default expiry.
func NewSession(userID string, ttl time.Duration) Session {
	if ttl <= 0 {
		ttl = SessionDefaultTTL
	}
	now := time.Now().UTC()
	return Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     GenerateSessionToken(),
		IsActive:  true,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// GenerateSessionToken produces an opaque, unique session token.
func GenerateSessionToken() string {
	return "session_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsExpired reports whether the session's expiry has passed.
func (s Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsValid is the sole authority for whether the session can be used.
func (s Session) IsValid() bool {
	return s.IsActive && !s.IsExpired()
}

// DeviceDescription renders a user-friendly label for the sessions list.
func (s Session) DeviceDescription() string {
	if s.DeviceInfo != "" {
		return s.DeviceInfo
	}
	switch ua := s.UserAgent; {
	case strings.Contains(ua, "Chrome"):
		return "Chrome Browser"
	case strings.Contains(ua, "Firefox"):
		return "Firefox Browser"
	case strings.Contains(ua, "Safari"):
		return "Safari Browser"
	case strings.Contains(ua, "Mobile"):
		return "Mobile Device"
	default:
		return "Unknown Device"
	}
}
