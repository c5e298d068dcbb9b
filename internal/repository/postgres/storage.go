package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the schema migrations for database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const (
	getSQL    = `SELECT value FROM local_storage WHERE key = $1`
	setSQL    = `INSERT INTO local_storage (key, value, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	deleteSQL = `DELETE FROM local_storage WHERE key = $1`
)

// DB is the pool surface the storage needs.
type DB interface {
	database.DBTX
	Ping(ctx context.Context) error
}

// Storage implements repository.Storage using PostgreSQL.
type Storage struct {
	db DB
}

// NewStorage creates a PostgreSQL-backed store. The schema must already be
// migrated.
func NewStorage(db DB) *Storage {
	return &Storage{db: db}
}

// Get retrieves the value under key.
func (s *Storage) Get(ctx context.Context, key string) (value string, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetItem", getSQL)
	defer func() { end(err) }()

	err = s.db.QueryRow(ctx, getSQL, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.NotFound("key", key)
	}
	if err != nil {
		return "", fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *Storage) Set(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "SetItem", setSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, setSQL, key, value); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Storage) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "RemoveItem", deleteSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, err)
	}
	return nil
}

// Ping checks the pool.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
