package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/autoledger/internal/errors"
)

// KV is a durable string key-value store backed by the kv table.
// Set returns only after the write is committed.
type KV struct {
	db  *sql.DB
	now func() time.Time
}

// NewKV returns a KV over db.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db, now: time.Now}
}

// Set upserts value under key.
func (s *KV) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value, s.now().UnixMilli()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Get returns the value stored under key, if any.
func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *KV) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Take reads and deletes key in one transaction, so two callers can never
// both observe the same value.
func (s *KV) Take(ctx context.Context, key string) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	var value string
	err = tx.QueryRowContext(ctx, "DELETE FROM kv WHERE key = ? RETURNING value", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}
