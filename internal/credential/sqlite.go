package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/database"
	"github.com/nerrad567/expo-client-core/migrations"
)

// DBTX is the subset of *sql.DB the SQLite store uses.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore keeps the token in the credentials table of the local database.
type SQLiteStore struct {
	db     DBTX
	closer func() error
	now    func() time.Time
}

// NewSQLiteStore wraps an already-migrated database handle. The caller keeps
// ownership of db; Close is a no-op.
func NewSQLiteStore(db DBTX) *SQLiteStore {
	return &SQLiteStore{db: db, closer: func() error { return nil }, now: time.Now}
}

// OpenSQLite opens (creating if needed) the database at cfg.Path, applies
// pending migrations and returns a store that owns the connection.
func OpenSQLite(ctx context.Context, cfg config.DatabaseConfig) (*SQLiteStore, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating credential database: %w", err)
	}

	s := NewSQLiteStore(db)
	s.closer = db.Close
	return s, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE key = ?", TokenKey).Scan(&token)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrNotFound
	case err != nil:
		return "", fmt.Errorf("loading token: %w", err)
	}
	return token, nil
}

func (s *SQLiteStore) Save(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		TokenKey, token, s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", TokenKey); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}

// Close closes the database if this store opened it.
func (s *SQLiteStore) Close() error {
	return s.closer()
}
