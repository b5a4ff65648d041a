package tokenstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps tokens in a SQLite key/value table. Each store instance
// addresses one (scope, key) row, so several API origins can share a file.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
	scope  string
	key    string
}

// Compile-time check to ensure SQLiteStore implements TokenStore
var _ TokenStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath, applies pending
// migrations and returns a store addressing the given scope and key.
// The caller must Close the store.
func NewSQLiteStore(dbPath, scope, key string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		dbPath,
	)
	return openSQLiteStore(dsn, scope, key)
}

func openSQLiteStore(dsn, scope, key string) (*SQLiteStore, error) {
	if scope == "" {
		return nil, fmt.Errorf("scope cannot be empty")
	}
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	// A single writer connection avoids "database is locked" errors.
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	if err := runMigrations(writer); err != nil {
		_ = writer.Close()
		return nil, err
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	return &SQLiteStore{
		writer: writer,
		reader: reader,
		scope:  scope,
		key:    key,
	}, nil
}

// runMigrations applies all pending migrations embedded in the binary.
// Already-applied migrations are skipped.
func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Read returns the token stored for the scope. Returns error if no row exists.
func (s *SQLiteStore) Read(ctx context.Context) (string, error) {
	const query = `SELECT value FROM tokens WHERE scope = ? AND key = ?`

	var token string
	err := s.reader.QueryRowContext(ctx, query, s.scope, s.key).Scan(&token)
	if err != nil {
		return "", fmt.Errorf("read token %q for %s: %w", s.key, s.scope, err)
	}
	if token == "" {
		return "", fmt.Errorf("empty token %q for %s", s.key, s.scope)
	}
	return token, nil
}

// Write stores or replaces the token for the scope.
func (s *SQLiteStore) Write(ctx context.Context, token string) error {
	const query = `INSERT OR REPLACE INTO tokens (scope, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`

	if _, err := s.writer.ExecContext(ctx, query, s.scope, s.key, token); err != nil {
		return fmt.Errorf("write token %q for %s: %w", s.key, s.scope, err)
	}
	return nil
}

// Delete removes the token row for the scope.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	const query = `DELETE FROM tokens WHERE scope = ? AND key = ?`

	if _, err := s.writer.ExecContext(ctx, query, s.scope, s.key); err != nil {
		return fmt.Errorf("delete token %q for %s: %w", s.key, s.scope, err)
	}
	return nil
}

// Close closes both reader and writer connections. Returns the first error encountered.
func (s *SQLiteStore) Close() error {
	var firstErr error

	if err := s.reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}

	if err := s.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}
