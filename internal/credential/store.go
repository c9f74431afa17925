package credential

import (
	"context"
	"errors"
)

// TokenKey is the single key the client persists.
const TokenKey = "auth_token"

// Sentinel errors. Check with errors.Is.
var (
	// ErrNotFound means no token is stored.
	ErrNotFound = errors.New("credential: no token stored")

	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("credential: store unavailable")
)

// Store persists the bearer token across process restarts.
//
// It holds exactly one entry and carries no business logic. Only the
// session manager writes to it.
type Store interface {
	// Load returns the stored token or ErrNotFound.
	Load(ctx context.Context) (string, error)

	// Save stores token, replacing any previous one.
	Save(ctx context.Context, token string) error

	// Clear removes the token. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	// Close releases the backing connection.
	Close() error
}
