// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides identity, alias, cookie, and state persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/lamp/internal/identity"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			key        TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (kind IN ('anonymous_web', 'anonymous_sms', 'authenticated'))
		);

		CREATE TABLE IF NOT EXISTS alias_links (
			pair_lo       TEXT NOT NULL,
			pair_hi       TEXT NOT NULL,
			previous_key  TEXT NOT NULL,
			previous_kind TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			transition_id TEXT NOT NULL,
			created_at    TEXT NOT NULL,

			PRIMARY KEY (pair_lo, pair_hi),
			CHECK (previous_key <> user_id)
		);

		CREATE INDEX IF NOT EXISTS idx_alias_user ON alias_links(user_id, created_at);

		CREATE TABLE IF NOT EXISTS cookies (
			host      TEXT NOT NULL,
			name      TEXT NOT NULL,
			value     TEXT NOT NULL,
			path      TEXT NOT NULL DEFAULT '',
			domain    TEXT NOT NULL DEFAULT '',
			expires   TEXT,
			secure    INTEGER NOT NULL DEFAULT 0,
			http_only INTEGER NOT NULL DEFAULT 0,

			PRIMARY KEY (host, name, path)
		);

		CREATE TABLE IF NOT EXISTS client_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies column additions to databases created by older builds.
func (s *SQLiteStore) runMigrations() error {
	// Migration: alias_links gained previous_kind once the kind tag was stored
	// instead of inferred from key shape.
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info('alias_links') WHERE name = 'previous_kind'`).Scan(&exists)
	if err != nil {
		if _, err := s.db.Exec(`ALTER TABLE alias_links ADD COLUMN previous_kind TEXT NOT NULL DEFAULT 'anonymous_web'`); err != nil {
			return fmt.Errorf("adding previous_kind column to alias_links: %w", err)
		}
		s.logger.Info("applied migration", "column", "previous_kind", "table", "alias_links")
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordIdentity stores the kind of id.Key. The first recorded kind sticks,
// except that a key may be promoted to authenticated.
func (s *SQLiteStore) RecordIdentity(ctx context.Context, id identity.Identity) error {
	if id.Key == "" {
		return identity.ErrEmptyKey
	}
	if !id.Kind.Valid() {
		return fmt.Errorf("invalid identity kind %q", id.Kind)
	}

	query := `
		INSERT INTO identities (key, kind, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET kind = excluded.kind
		WHERE excluded.kind = 'authenticated'
	`
	_, err := s.db.ExecContext(ctx, query, id.Key, string(id.Kind), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording identity: %w", err)
	}
	return nil
}

// IdentityKind returns the recorded kind for key.
// Returns ErrNotFound if the key was never recorded.
func (s *SQLiteStore) IdentityKind(ctx context.Context, key string) (identity.Kind, error) {
	var kind string
	err := s.db.QueryRowContext(ctx, `SELECT kind FROM identities WHERE key = ?`, key).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying identity: %w", err)
	}
	return identity.Kind(kind), nil
}

// RecordAlias inserts link into the ledger keyed by the unordered pair.
func (s *SQLiteStore) RecordAlias(ctx context.Context, link *identity.AliasLink) (bool, error) {
	if link.PreviousKey == link.UserID {
		return false, identity.ErrSelfAlias
	}
	lo, hi := identity.PairKey(link.PreviousKey, link.UserID)
	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO alias_links (pair_lo, pair_hi, previous_key, previous_kind, user_id, transition_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_lo, pair_hi) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		lo, hi,
		link.PreviousKey,
		string(link.PreviousKind),
		link.UserID,
		link.TransitionID,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("inserting alias: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("recorded alias",
		"user_id", link.UserID,
		"previous_kind", link.PreviousKind,
		"transition_id", link.TransitionID,
		"inserted", rows == 1,
	)
	return rows == 1, nil
}

// ListAliases returns the links pointing at userID, oldest first.
func (s *SQLiteStore) ListAliases(ctx context.Context, userID string) ([]*identity.AliasLink, error) {
	query := `
		SELECT previous_key, previous_kind, user_id, transition_id, created_at
		FROM alias_links
		WHERE user_id = ?
		ORDER BY created_at ASC, previous_key ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying aliases: %w", err)
	}
	defer rows.Close()

	var links []*identity.AliasLink
	for rows.Next() {
		var link identity.AliasLink
		var kind, createdAtStr string
		if err := rows.Scan(&link.PreviousKey, &kind, &link.UserID, &link.TransitionID, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}
		link.PreviousKind = identity.Kind(kind)
		link.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

// ReplaceCookies swaps the stored cookie set for host in one transaction.
func (s *SQLiteStore) ReplaceCookies(ctx context.Context, host string, cookies []*Cookie) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM cookies WHERE host = ?`, host); err != nil {
		return fmt.Errorf("clearing cookies: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO cookies (host, name, value, path, domain, expires, secure, http_only)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, c := range cookies {
		if _, err := tx.ExecContext(ctx, query,
			host, c.Name, c.Value, c.Path, c.Domain, nullTime(c.Expires), boolInt(c.Secure), boolInt(c.HTTPOnly),
		); err != nil {
			return fmt.Errorf("inserting cookie %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cookies: %w", err)
	}
	s.logger.Debug("stored cookies", "host", host, "count", len(cookies))
	return nil
}

// LoadCookies returns the stored cookies for host.
func (s *SQLiteStore) LoadCookies(ctx context.Context, host string) ([]*Cookie, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value, path, domain, expires, secure, http_only
		FROM cookies
		WHERE host = ?
		ORDER BY name
	`, host)
	if err != nil {
		return nil, fmt.Errorf("querying cookies: %w", err)
	}
	defer rows.Close()

	var cookies []*Cookie
	for rows.Next() {
		c := Cookie{Host: host}
		var expires sql.NullString
		var secure, httpOnly int
		if err := rows.Scan(&c.Name, &c.Value, &c.Path, &c.Domain, &expires, &secure, &httpOnly); err != nil {
			return nil, fmt.Errorf("scanning cookie: %w", err)
		}
		if expires.Valid {
			t, err := time.Parse(time.RFC3339, expires.String)
			if err != nil {
				return nil, fmt.Errorf("parsing expires: %w", err)
			}
			c.Expires = &t
		}
		c.Secure = secure == 1
		c.HTTPOnly = httpOnly == 1
		cookies = append(cookies, &c)
	}
	return cookies, rows.Err()
}

// ClearCookies deletes every stored cookie for host.
func (s *SQLiteStore) ClearCookies(ctx context.Context, host string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cookies WHERE host = ?`, host); err != nil {
		return fmt.Errorf("deleting cookies: %w", err)
	}
	return nil
}

// GetState returns the value stored under key.
// Returns ErrNotFound if the key is unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying state: %w", err)
	}
	return value, nil
}

// SetState upserts key.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("setting state: %w", err)
	}
	return nil
}

// DeleteState removes key. Deleting an unset key is not an error.
func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	return nil
}
