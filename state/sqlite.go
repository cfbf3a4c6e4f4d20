package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

var schemaSQL = []string{`
CREATE TABLE IF NOT EXISTS task_state_entries (
    entry_key   TEXT    PRIMARY KEY,
    entry_value BLOB    NOT NULL,
    expires_at  INTEGER NULL
)`,
	`CREATE INDEX IF NOT EXISTS task_state_entries_expires ON task_state_entries (expires_at)`,
}

// SQLStore implements StateStore on a SQL table. It is written for SQLite via
// the pure-Go modernc driver; expires_at holds Unix nanoseconds or NULL.
type SQLStore struct {
	db     *sql.DB
	ownDB  bool
	now    func() time.Time
	closed atomic.Bool
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLClock sets the time source used for expiry.
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		s.now = now
	}
}

// OpenSQLite opens (or creates) a SQLite database at path and prepares the
// schema. path may be a plain file name or a DSN such as
// "file:tasks?mode=memory&cache=shared". The store owns the returned handle.
func OpenSQLite(ctx context.Context, path string, opts ...SQLOption) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite permits one writer; a single connection avoids SQLITE_BUSY and
	// keeps shared-cache in-memory databases alive for the store's lifetime.
	db.SetMaxOpenConns(1)

	s, err := NewSQLStore(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownDB = true
	return s, nil
}

// NewSQLStore wraps an existing database handle and creates the schema if
// needed. The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *sql.DB, opts ...SQLOption) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sql db required")
	}
	s := &SQLStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	for _, stmt := range schemaSQL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return s, nil
}

// Get retrieves a value by key.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var (
		value   []byte
		expires sql.NullInt64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT entry_value, expires_at FROM task_state_entries WHERE entry_key = ?`, key)
	if err := row.Scan(&value, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	if expires.Valid && expires.Int64 <= s.now().UnixNano() {
		return nil, ErrNotFound
	}
	return value, nil
}

// Set stores a value with optional TTL.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateTTL(ttl); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	var expires sql.NullInt64
	if ttl > 0 {
		expires = sql.NullInt64{Int64: s.now().Add(ttl).UnixNano(), Valid: true}
	}
	if value == nil {
		value = []byte{}
	}

	const q = `INSERT INTO task_state_entries (entry_key, entry_value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(entry_key) DO UPDATE SET entry_value = excluded.entry_value, expires_at = excluded.expires_at`
	if _, err := s.db.ExecContext(ctx, q, key, value, expires); err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

// Delete removes a key and reports whether a live entry was removed.
func (s *SQLStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if s.closed.Load() {
		return false, ErrClosed
	}

	now := s.now().UnixNano()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_state_entries WHERE entry_key = ? AND (expires_at IS NULL OR expires_at > ?)`, key, now)
	if err != nil {
		return false, fmt.Errorf("sqlite delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite delete: %w", err)
	}
	if n == 0 {
		// Drop an expired row, if any, so the key is fully gone.
		if _, err := s.db.ExecContext(ctx, `DELETE FROM task_state_entries WHERE entry_key = ?`, key); err != nil {
			return false, fmt.Errorf("sqlite delete: %w", err)
		}
	}
	return n > 0, nil
}

// List returns all live keys with the given prefix in key order. Expired rows
// are purged first.
func (s *SQLStore) List(ctx context.Context, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	if _, err := s.PurgeExpired(ctx); err != nil {
		return nil, err
	}

	// BINARY collation orders keys bytewise, so keys sharing a prefix are a
	// contiguous range starting at the prefix itself.
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_key FROM task_state_entries WHERE entry_key >= ? ORDER BY entry_key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite list: %w", err)
		}
		if !strings.HasPrefix(key, prefix) {
			break
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	return keys, nil
}

// PurgeExpired deletes every expired row and returns how many were removed.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_state_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	return int(n), nil
}

// Close shuts down the store. A handle opened by OpenSQLite is closed.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.ownDB {
		return s.db.Close()
	}
	return nil
}
