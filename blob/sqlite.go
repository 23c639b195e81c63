package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lanewise/ingest/dbopen"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blobs (
	key          TEXT PRIMARY KEY,
	content_type TEXT NOT NULL DEFAULT '',
	data         BLOB NOT NULL,
	updated_at   INTEGER NOT NULL
);
`

// SQLite stores blobs in a single table of an SQLite database. Useful when
// the artifacts should travel with the rest of the tenant state in one file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(sqliteSchema))
	if err != nil {
		return nil, fmt.Errorf("blob: open sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// NewSQLiteDB wraps an already opened database, ensuring the schema. The
// caller keeps ownership of db.
func NewSQLiteDB(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("blob: ensure schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database. Only call it for stores created
// with NewSQLite.
func (s *SQLite) Close() error { return s.db.Close() }

// Save implements Store. The locator is "sqlite:" plus the key.
func (s *SQLite) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO blobs (key, content_type, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			content_type = excluded.content_type,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		key, contentType, data, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("blob: save %s: %w", key, err)
	}
	return "sqlite:" + key, nil
}

// Read implements Store.
func (s *SQLite) Read(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", key, err)
	}
	return data, nil
}

// Exists implements Store.
func (s *SQLite) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM blobs WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blob: exists %s: %w", key, err)
	}
	return true, nil
}

// Remove implements Store.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := dbopen.Exec(ctx, s.db, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("blob: remove %s: %w", key, err)
	}
	return nil
}
