package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS session_cache (
		cache_key  TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`

// SQLiteStore keeps entries in a SQLite database, one row per server.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (and if needed creates) the cache database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache %s: %w", path, err)
	}
	// One connection serialises read-modify-write transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session_cache table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (*Entry, error) {
	return loadEntry(ctx, s.db, key)
}

func (s *SQLiteStore) Update(ctx context.Context, key string, fn func(*Entry) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := loadEntry(ctx, tx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	next, err := apply(current, fn)
	if err != nil {
		return err
	}

	if next == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_cache WHERE cache_key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete cache entry: %w", err)
		}
		return tx.Commit()
	}

	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO session_cache (cache_key, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, q, key, string(data), next.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// loadEntry reads one entry through either the DB or an open transaction.
func loadEntry(ctx context.Context, q sqlx.QueryerContext, key string) (*Entry, error) {
	var data string
	err := sqlx.GetContext(ctx, q, &data,
		`SELECT data FROM session_cache WHERE cache_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry: %w", err)
	}
	return &e, nil
}
