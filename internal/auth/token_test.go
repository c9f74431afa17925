package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-server-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func TestInspectToken(t *testing.T) {
	raw := signTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		Role:             RoleOrganizer,
	})

	claims, err := InspectToken(raw)
	if err != nil {
		t.Fatalf("InspectToken() error = %v", err)
	}
	if claims.Subject != "u1" || claims.Role != RoleOrganizer {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := InspectToken("T1"); !errors.Is(err, ErrNotJWT) {
		t.Errorf("InspectToken(opaque) error = %v, want ErrNotJWT", err)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{
			name: "expired",
			raw:  signTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}}),
			want: true,
		},
		{
			name: "expires exactly now",
			raw:  signTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now)}}),
			want: true,
		},
		{
			name: "still valid",
			raw:  signTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}),
			want: false,
		},
		{
			name: "no exp claim",
			raw:  signTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}),
			want: false,
		},
		{
			name: "opaque token",
			raw:  "T1",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenExpired(tt.raw, now); got != tt.want {
				t.Errorf("TokenExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}
