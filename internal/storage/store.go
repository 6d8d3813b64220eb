package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// Store wraps the SQLite handle that backs the client's durable local state.
type Store struct {
	db *sql.DB
}

// ErrEmptyKey is returned when a key is blank.
var ErrEmptyKey = errors.New("storage key is empty")

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "gqlchat.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

// Get returns the value stored under key. ok is false when no entry exists.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	row := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// GetPair reads two entries in a single statement so callers never observe
// one half of a pair written by a concurrent SetPair.
func (s *Store) GetPair(ctx context.Context, firstKey, secondKey string) (map[string]string, error) {
	if firstKey == "" || secondKey == "" {
		return nil, ErrEmptyKey
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM preferences WHERE key IN (?, ?)`, firstKey, secondKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string, 2)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

// Set upserts a single entry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, upsertStatement, key, value)
	return err
}

// SetPair writes both entries in one transaction.
func (s *Store) SetPair(ctx context.Context, firstKey, firstValue, secondKey, secondValue string) (err error) {
	if firstKey == "" || secondKey == "" {
		return ErrEmptyKey
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, upsertStatement, firstKey, firstValue); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, upsertStatement, secondKey, secondValue); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the given keys in one transaction. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, key := range keys {
		if _, err = tx.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const upsertStatement = `INSERT INTO preferences(key, value, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
