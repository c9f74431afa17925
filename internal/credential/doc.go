// Package credential persists the session's bearer token.
//
// A Store holds exactly one entry, the token under the key "auth_token". It is
// read once at bootstrap and written only by the session manager: on
// successful login or registration, and cleared on logout or when the backend
// rejects the token.
//
// Backends:
//   - sqlite (default): credentials table in the local database file (0600)
//   - redis: shared key, optional TTL, for kiosk hosts running several clients
//   - memory: nothing survives the process
package credential
