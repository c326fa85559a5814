// Package store implements the record store: collections of JSON documents
// persisted in sqlite. Every bot, template, account and order record lives
// here keyed by (collection, id).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Collection names used across the core.
const (
	Templates      = "templates"
	Accounts       = "accounts"
	Users          = "users"
	GridBots       = "gridBots"
	DCABots        = "dcaBots"
	MomentumBots   = "momentumBots"
	RSIBots        = "rsiBots"
	CandleBots     = "candleBots"
	ActiveOrders   = "activeOrders"
	SafetyStates   = "safetyStates"
	CompletedDeals = "completedDeals"
)

var ErrNotFound = errors.New("record not found")

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// Store is a sqlite-backed document store.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the database at path and applies the schema.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer; serialize access through one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for migrations and tests.
func (s *Store) DB() *sql.DB { return s.db }

// GetAll returns every document in a collection.
func (s *Store) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM documents WHERE collection = ? ORDER BY updated_at, id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		docs = append(docs, data)
	}
	return docs, rows.Err()
}

// Get returns a single document by id.
func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM documents WHERE collection = ? AND id = ?
	`, collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return data, nil
}

// Put inserts or replaces a single document.
func (s *Store) Put(ctx context.Context, collection, id string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, collection, id, doc)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

// SaveAll replaces the full contents of a collection in one transaction.
func (s *Store) SaveAll(ctx context.Context, collection string, docs map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, doc := range docs {
		if _, err := stmt.ExecContext(ctx, collection, id, doc); err != nil {
			return fmt.Errorf("save %s/%s: %w", collection, id, err)
		}
	}
	return tx.Commit()
}

// UpdateByID applies a shallow JSON merge patch to one document.
// Unknown ids return ErrNotFound.
func (s *Store) UpdateByID(ctx context.Context, collection, id string, patch map[string]any) error {
	current, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(current, &doc); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.Put(ctx, collection, id, merged)
}

// DeleteByID removes one document. Deleting a missing id is not an error.
func (s *Store) DeleteByID(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// List decodes every document of a collection into T.
func List[T any](ctx context.Context, s *Store, collection string) ([]T, error) {
	raw, err := s.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, doc := range raw {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetTyped decodes a single document into v.
func GetTyped(ctx context.Context, s *Store, collection, id string, v any) error {
	raw, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// PutTyped marshals v and stores it.
func PutTyped(ctx context.Context, s *Store, collection, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, collection, id, raw)
}
