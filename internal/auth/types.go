package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role represents an authorisation tier on the expo platform.
// Roles are assigned by the backend and never changed client side.
type Role string

const (
	// RoleAdmin runs the platform. Satisfies every role requirement.
	RoleAdmin Role = "admin"

	// RoleOrganizer creates and manages expos.
	RoleOrganizer Role = "organizer"

	// RoleExhibitor is a company presenting at expos (booths, applications).
	RoleExhibitor Role = "exhibitor"

	// RoleAttendee is an expo visitor/registrant.
	RoleAttendee Role = "attendee"
)

// Roles lists every role the platform knows, most privileged first.
var Roles = []Role{RoleAdmin, RoleOrganizer, RoleExhibitor, RoleAttendee}

// Valid reports whether r is one of Roles.
func (r Role) Valid() bool {
	for _, v := range Roles {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRole converts user input such as "Organizer" into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// User is the authenticated account as returned by the backend.
// Only ID and Role are load-bearing for this package; the remaining fields
// are carried for display and profile updates.
type User struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Email     string     `json:"email,omitempty"`
	Username  string     `json:"username,omitempty"`
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	Company   string     `json:"company,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Bio       string     `json:"bio,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// Clone returns a deep copy so snapshots handed to observers cannot be
// mutated behind the session manager's back.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.CreatedAt != nil {
		t := *u.CreatedAt
		c.CreatedAt = &t
	}
	return &c
}

// DisplayName returns "First Last", falling back to the username, then the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Sentinel errors for auth operations.
var (
	ErrUnknownRole = errors.New("unknown role")
	ErrNotJWT      = errors.New("token is not a JWT")
)
