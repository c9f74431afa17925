// Package apiclient is the HTTP client for the expo backend's user
// endpoints: profile, login, register, profile update, password change
// and password reset.
//
// Every request carries a fresh X-Request-ID. Non-2xx responses become
// *Error with the backend's message; transport failures wrap
// ErrUnavailable. A 401 matches ErrUnauthorized:
//
//	user, err := c.Profile(ctx, token)
//	if errors.Is(err, apiclient.ErrUnauthorized) {
//		// token no longer valid
//	}
package apiclient
