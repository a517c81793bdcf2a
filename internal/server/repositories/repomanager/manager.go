package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/dmitrijs2005/offsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/offsync/internal/server/repositories/snapshots"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	EnsureTables(context.Context, dbx.DBTX, *schema.Schema) error
	Records(db dbx.DBTX, t *schema.Table) records.Repository
	Snapshots(db dbx.DBTX) snapshots.Repository
	// WithWriteFence runs fn in a transaction that holds the write fence in
	// shared mode. Any number of writers may hold it at once.
	WithWriteFence(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx dbx.DBTX) error) error
	// DrainWrites takes the write fence exclusively, so it waits for every
	// fenced writer in flight to finish, and calls fn while new writers
	// are held off.
	DrainWrites(ctx context.Context, db *sql.DB, fn func()) error
}
