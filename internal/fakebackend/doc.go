// Package fakebackend is an in-process stand-in for the expo platform
// backend: the /api/users REST endpoints and the /ws realtime socket.
//
// It keeps accounts in memory, hashes passwords with Argon2id and issues
// HS256 JWTs, so clients exercise the same wire formats they meet in
// production. Tests drive it through helpers:
//
//	srv := fakebackend.New(fakebackend.Options{})
//	ts := httptest.NewServer(srv.Handler())
//	defer ts.Close()
//
//	u, _ := srv.AddUser(auth.User{Email: "a@b.c", Role: auth.RoleOrganizer}, "secret1")
//	srv.FailNext(http.MethodGet, "/api/users/profile", 500, "boom")
//	srv.Broadcast("expo-1", "expo-updated", map[string]any{"id": "expo-1"})
//
// The expofake command serves it on a TCP port for local development.
package fakebackend
