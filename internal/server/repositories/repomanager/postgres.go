// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors, goose migrations and the
// schema-driven record tables.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/dmitrijs2005/offsync/internal/server/migrations"
	"github.com/dmitrijs2005/offsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/offsync/internal/server/repositories/snapshots"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations.
type PostgresRepositoryManager struct{}

// Records returns a records.Repository for table t bound to db.
func (m *PostgresRepositoryManager) Records(db dbx.DBTX, t *schema.Table) records.Repository {
	return records.NewPostgresRepository(db, t)
}

// Snapshots returns a snapshots.Repository bound to db.
func (m *PostgresRepositoryManager) Snapshots(db dbx.DBTX) snapshots.Repository {
	return snapshots.NewPostgresRepository(db)
}

// writeFenceKey names the transaction-scoped advisory lock that orders
// record writes against download cutoffs.
const writeFenceKey int64 = 0x6f666673796e63

// WithWriteFence runs fn in a transaction after taking the write fence in
// shared mode. The lock is released when the transaction ends.
func (m *PostgresRepositoryManager) WithWriteFence(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock_shared($1)`, writeFenceKey); err != nil {
			return fmt.Errorf("acquire write fence: %w", err)
		}
		return fn(ctx, tx)
	})
}

// DrainWrites takes the write fence exclusively and calls fn while holding
// it. Writers that stamped a row before fn runs have committed by then.
func (m *PostgresRepositoryManager) DrainWrites(ctx context.Context, db *sql.DB, fn func()) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, writeFenceKey); err != nil {
			return fmt.Errorf("drain writes: %w", err)
		}
		fn()
		return nil
	})
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// EnsureTables creates the table and index of every schema type if missing.
func (m *PostgresRepositoryManager) EnsureTables(ctx context.Context, db dbx.DBTX, s *schema.Schema) error {
	for _, t := range s.Tables {
		for _, stmt := range t.CentralDDL() {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create table %s: %w", t.Name, err)
			}
		}
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
