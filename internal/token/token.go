// Package token issues and validates the stateless bearer tokens used by
// every authenticated endpoint. Tokens are HS256 JWTs carrying the subject
// id, email and user type; any backend instance holding the shared secret
// can validate them without a session store round-trip.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/locoplatform/api/internal/apperr"
	"github.com/locoplatform/api/internal/domain"
)

const bearerPrefix = "Bearer "

// Claims is the fixed claim schema. Tokens missing any required field are
// rejected on decode rather than silently defaulted.
type Claims struct {
	Email    string `json:"email"`
	UserType string `json:"user_type"`
	jwtlib.RegisteredClaims
}

// UserID returns the subject identity id.
func (c *Claims) UserID() string {
	return c.Subject
}

// Service signs and validates tokens with an immutable secret injected at
// construction. The secret is never logged.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService constructs a Service. ttl defaults to 24h when zero.
func NewService(secret string, ttl time.Duration) (Service, error) {
	if secret == "" {
		return Service{}, errors.New("token: empty signing secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return Service{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the identity with iat = now and exp = now + ttl.
func (s Service) Issue(userID, email string, userType domain.UserType) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:    email,
		UserType: string(userType),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature and expiry and returns the claims. Malformed
// tokens, signature mismatches and expired tokens all collapse into
// apperr.ErrInvalidToken so the caller cannot leak which check failed.
func (s Service) Validate(token string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return s.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apperr.ErrInvalidToken
	}
	if claims.Subject == "" || claims.Email == "" || claims.UserType == "" {
		return nil, fmt.Errorf("%w: missing required claims", apperr.ErrInvalidToken)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing time claims", apperr.ErrInvalidToken)
	}
	return claims, nil
}

// TTL reports the configured token lifetime.
func (s Service) TTL() time.Duration {
	return s.ttl
}

// FromAuthHeader extracts the raw token from an Authorization header value.
// The header must be exactly "Bearer " followed by the token.
func FromAuthHeader(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", apperr.ErrInvalidToken
	}
	token := header[len(bearerPrefix):]
	if token == "" {
		return "", apperr.ErrInvalidToken
	}
	return token, nil
}
