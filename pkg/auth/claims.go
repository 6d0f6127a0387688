package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims mirrors the platform's access-token claims.
type Claims struct {
	UserID    int64 `json:"user_id"`
	DaycareID int64 `json:"daycare_id"`
	jwt.RegisteredClaims
}

// ParseClaims decodes token claims without verifying the signature. The
// client holds no signing secret; verification is the server's job on every
// request. This exists only to sanity-check restored sessions before they
// are trusted locally.
func ParseClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Expired reports whether the token carries an exp claim in the past.
// Tokens without exp are treated as unexpired.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(c.ExpiresAt.Time)
}
