// Package store opens the local SQLite database, applies migrations and
// creates the tables of the synchronised record types.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/client/migrations"
	"github.com/dmitrijs2005/offsync/internal/filex"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// BusyTimeoutMillis is how long a writer waits on the SQLite lock.
const BusyTimeoutMillis = 5000

// DSN builds the modernc.org/sqlite data source for path. Transactions
// begin IMMEDIATE so the write lock is held from the first statement.
func DSN(path string) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		path, BusyTimeoutMillis)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// EnsureTables creates every table of the schema that does not exist yet.
func EnsureTables(ctx context.Context, db *sql.DB, s *schema.Schema) error {
	for _, t := range s.Tables {
		for _, stmt := range t.LocalDDL() {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create table %s: %w", t.Name, err)
			}
		}
	}
	return nil
}

// Open opens the database at path and prepares it for the schema.
func Open(ctx context.Context, path string, s *schema.Schema) (*sql.DB, error) {
	if _, err := filex.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := EnsureTables(ctx, db, s); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
