package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

//go:embed schema.sql
var schema string

const (
	getSQL    = `SELECT value FROM local_storage WHERE key = ?`
	setSQL    = `INSERT INTO local_storage (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteSQL = `DELETE FROM local_storage WHERE key = ?`
)

// Storage implements repository.Storage on a local SQLite file.
type Storage struct {
	db *sql.DB
}

// NewStorage creates the local_storage table if needed.
func NewStorage(ctx context.Context, db *sql.DB) (*Storage, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Get retrieves the value under key.
func (s *Storage) Get(ctx context.Context, key string) (value string, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "GetItem", getSQL)
	defer func() { end(err) }()

	err = s.db.QueryRowContext(ctx, getSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFound("key", key)
	}
	if err != nil {
		return "", fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *Storage) Set(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "SetItem", setSQL)
	defer func() { end(err) }()

	if _, err = s.db.ExecContext(ctx, setSQL, key, value); err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Storage) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "RemoveItem", deleteSQL)
	defer func() { end(err) }()

	if _, err = s.db.ExecContext(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}

// Ping checks the database handle.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
