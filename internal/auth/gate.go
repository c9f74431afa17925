package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// Requirement is the role specification attached to a protected view.
//
// The zero value admits any authenticated user. Build others with
// RequireRole or RequireAnyOf; both panic on roles outside Roles since a
// typo in a route table is a wiring bug, not a runtime condition.
type Requirement struct {
	roles []Role
}

// AnyRole admits every authenticated user.
func AnyRole() Requirement {
	return Requirement{}
}

// RequireRole admits r (and admin).
func RequireRole(r Role) Requirement {
	return RequireAnyOf(r)
}

// RequireAnyOf admits any of rs (and admin). It panics when rs is empty or
// contains an unknown role.
func RequireAnyOf(rs ...Role) Requirement {
	if len(rs) == 0 {
		panic("auth: RequireAnyOf called with no roles")
	}
	roles := make([]Role, 0, len(rs))
	for _, r := range rs {
		if !r.Valid() {
			panic(fmt.Sprintf("auth: unknown role %q in requirement", r))
		}
		roles = append(roles, r)
	}
	return Requirement{roles: roles}
}

// Roles returns the listed roles, or nil for AnyRole.
func (q Requirement) Roles() []Role {
	if len(q.roles) == 0 {
		return nil
	}
	return append([]Role(nil), q.roles...)
}

// IsZero reports whether q admits any authenticated user.
func (q Requirement) IsZero() bool {
	return len(q.roles) == 0
}

// SatisfiedBy reports whether a user holding role passes q.
// Admin satisfies every requirement.
func (q Requirement) SatisfiedBy(role Role) bool {
	if role == RoleAdmin || q.IsZero() {
		return true
	}
	for _, r := range q.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (q Requirement) String() string {
	if q.IsZero() {
		return "any"
	}
	parts := make([]string, len(q.roles))
	for i, r := range q.roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, "|")
}

// DecisionKind is the outcome class of an authorization check.
type DecisionKind int

const (
	// Allow renders the requested view.
	Allow DecisionKind = iota

	// Redirect sends the user to Decision.Target.
	Redirect

	// Pending means the session is still resolving; render a neutral
	// waiting state and ask again later.
	Pending
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Pending:
		return "pending"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Decision is the result of Authorize.
type Decision struct {
	Kind DecisionKind

	// Target is the redirect destination. Empty unless Kind is Redirect.
	Target string

	// ReturnTo is the originally requested location, set only when an
	// unauthenticated user is sent to the login surface.
	ReturnTo string
}

// Allowed reports whether the view may render.
func (d Decision) Allowed() bool {
	return d.Kind == Allow
}

// Location returns Target with ReturnTo encoded as a returnTo query parameter.
func (d Decision) Location() string {
	if d.Kind != Redirect {
		return ""
	}
	if d.ReturnTo == "" {
		return d.Target
	}
	sep := "?"
	if strings.Contains(d.Target, "?") {
		sep = "&"
	}
	return d.Target + sep + url.Values{"returnTo": {d.ReturnTo}}.Encode()
}

// Routes names the surfaces a denied navigation is redirected to.
type Routes struct {
	// Login is the entry surface for unauthenticated users.
	Login string

	// Landing is the default surface for authenticated users who lack the
	// required role.
	Landing string
}

// DefaultRoutes returns /login and /dashboard.
func DefaultRoutes() Routes {
	return Routes{Login: "/login", Landing: "/dashboard"}
}

// Authorize decides whether user may see a view protected by required.
//
// The caller must handle the "session still loading" case first (see
// session.Manager.Guard); a nil user here always means unauthenticated.
//
//   - nil user: Redirect to routes.Login, ReturnTo = requested
//   - required satisfied (admin always is): Allow
//   - otherwise: Redirect to routes.Landing
//
// Authorize has no side effects.
func Authorize(user *User, required Requirement, requested string, routes Routes) Decision {
	if user == nil {
		return Decision{Kind: Redirect, Target: routes.Login, ReturnTo: requested}
	}
	if required.SatisfiedBy(user.Role) {
		return Decision{Kind: Allow}
	}
	return Decision{Kind: Redirect, Target: routes.Landing}
}
