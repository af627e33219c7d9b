// Package auth verifies the HS256 bearer tokens issued by the identity service and
// carries the resulting claims through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the shared secret and the issuer tokens must name.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the token payload. Subject is the user id.
type Claims struct {
	Scopes ScopeSet `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// NewClaims builds claims for userID. Used when issuing tokens and in tests.
func NewClaims(userID string, scopes ...string) *Claims {
	return &Claims{
		Scopes:           NewScopeSet(scopes...),
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return c != nil && c.Scopes.Allows(scope)
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// ParseClaims verifies token and returns its claims. Expiry and subject are required.
func ParseClaims(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	return claims, nil
}

// IssueToken signs a token for userID that expires after ttl.
func IssueToken(cfg Config, userID string, ttl time.Duration, scopes ...string) (string, error) {
	now := time.Now()
	claims := NewClaims(userID, scopes...)
	claims.Issuer = cfg.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

type contextKey struct{}

// WithClaims stores claims on ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// FromContext returns claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok && claims != nil
}

// UserID returns the authenticated user.
func UserID(ctx context.Context) (string, bool) {
	claims, ok := FromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
