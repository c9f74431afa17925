package session

import "github.com/nerrad567/expo-client-core/internal/auth"

// State is the authentication state of a Manager.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the session at one point in time. User is nil
// unless State is Authenticated.
type Snapshot struct {
	State        State
	User         *auth.User
	Loading      bool
	Error        string
	Bootstrapped bool
}

// Authenticated reports whether a user is signed in.
func (s Snapshot) Authenticated() bool {
	return s.State == Authenticated && s.User != nil
}
