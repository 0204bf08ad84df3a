// Package store provides persistent auth.TokenStore implementations: a
// SQLite-backed store for applications that already carry a database, and a
// JSON-file store with cross-process locking for simpler deployments. Both
// scope state by namespace so each authenticator flavor owns its own keys.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/onedrive-sdk-go/auth"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists login state in an embedded SQLite database. One
// database holds every namespace; PutAll and Clear are transactional, so the
// all-or-none contract of auth.TokenStore holds across crashes.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// pending schema migrations. Use ":memory:" for tests.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening login state database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Namespace returns the auth.TokenStore view over one namespace.
func (s *SQLiteStore) Namespace(name string) auth.TokenStore {
	return &sqliteNamespace{store: s, name: name}
}

// runMigrations applies all pending schema migrations.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// sqliteNamespace is one namespace's view of the shared database.
type sqliteNamespace struct {
	store *SQLiteStore
	name  string
}

func (n *sqliteNamespace) Get(key string) (string, bool, error) {
	var value string

	err := n.store.db.QueryRow(
		"SELECT value FROM login_state WHERE namespace = ? AND key = ?",
		n.name, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("store: reading %s/%s: %w", n.name, key, err)
	}

	return value, true, nil
}

func (n *sqliteNamespace) PutAll(values map[string]string) error {
	tx, err := n.store.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for key, value := range values {
		if _, err := tx.Exec(
			`INSERT INTO login_state (namespace, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (namespace, key) DO UPDATE SET
			   value = excluded.value,
			   updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
			n.name, key, value,
		); err != nil {
			return fmt.Errorf("store: writing %s/%s: %w", n.name, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	return nil
}

func (n *sqliteNamespace) Clear() error {
	if _, err := n.store.db.Exec(
		"DELETE FROM login_state WHERE namespace = ?", n.name,
	); err != nil {
		return fmt.Errorf("store: clearing %s: %w", n.name, err)
	}

	return nil
}
