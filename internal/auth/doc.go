// Package auth holds the expo platform's role model and the authorization
// gate used by route guards.
//
// Four roles exist: admin, organizer, exhibitor and attendee. A view is
// protected by a Requirement (any authenticated user, one role, or a set of
// roles). Admin satisfies every Requirement; other roles pass only on an exact
// or listed match.
//
// Authorize is a pure function:
//
//	d := auth.Authorize(user, auth.RequireRole(auth.RoleOrganizer), "/expos/new", routes)
//	switch d.Kind {
//	case auth.Allow:
//	    // render
//	case auth.Redirect:
//	    // navigate to d.Location()
//	}
//
// Unauthenticated users are redirected to the login surface with the
// requested location preserved; authenticated users lacking the role are sent
// to the landing surface.
//
// The package also decodes (without verifying) JWT claims so an obviously
// expired token can be discarded locally.
package auth
