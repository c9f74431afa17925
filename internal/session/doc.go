// Package session owns the client's authenticated session.
//
// A Manager holds the signed-in user and bearer token, persists the token
// through a credential.Store, restores it on start (Bootstrap), and opens
// or closes the realtime channel as the session begins and ends. Observers
// receive a Snapshot after each change. Guard answers route protection
// questions on top of auth.Authorize, adding the "still loading" case.
package session
