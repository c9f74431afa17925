// Package database provides the local SQLite file used by the expo client.
//
// The file holds the persisted credential (see internal/credential) and the
// migration bookkeeping table. It is opened with:
//   - WAL mode and a busy timeout, so a second CLI invocation does not fail on a lock
//   - 0600 permissions, since the bearer token lives here
//   - a single connection, which also keeps ":memory:" databases alive
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Credentials.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are pairs of .up.sql and .down.sql files at the root of an fs.FS,
// named YYYYMMDD_HHMMSS_description.
package database
