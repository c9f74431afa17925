package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload the expo backend issues.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role,omitempty"`
}

// InspectToken decodes the claims of a JWT without verifying its signature.
//
// The client cannot verify tokens (it does not hold the key); this is only
// used to avoid a pointless round trip with a token that has visibly expired.
// Returns ErrNotJWT for opaque tokens.
func InspectToken(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJWT, err)
	}
	return claims, nil
}

// TokenExpired reports whether raw is a JWT whose exp claim is at or before
// now. Opaque tokens and tokens without exp are never considered expired.
func TokenExpired(raw string, now time.Time) bool {
	claims, err := InspectToken(raw)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
