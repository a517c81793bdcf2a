// Package engine is the client side of offsync. It owns every write to the
// local store: local mutations mark records dirty, the upload half turns
// dirty records into an UploadRequest and folds the server's answer back,
// and the download half merges inbound records and advances cursors.
//
// Every read-modify-write of a record runs under a per-record lock and in
// its own IMMEDIATE transaction. Network calls never happen here; callers
// pass the cutoff returned by RetrieveUploadRequest to StoreUploadResponse.
package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/client/repositories/cursors"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/keylock"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/dmitrijs2005/offsync/internal/timex"
	"github.com/google/uuid"
)

// IDGenerator produces record ids.
type IDGenerator interface {
	New() (string, error)
}

// UUIDv7Generator produces time-ordered UUIDs.
type UUIDv7Generator struct{}

func (UUIDv7Generator) New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type Engine struct {
	db     *sql.DB
	schema *schema.Schema
	clock  timex.Clock
	ids    IDGenerator
	locks  *keylock.Locker
	logger logging.Logger
}

type Option func(*Engine)

// WithClock sets the time source. It is wrapped so readings never repeat.
func WithClock(c timex.Clock) Option {
	return func(e *Engine) { e.clock = timex.NewMonotonicClock(c) }
}

func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(db *sql.DB, s *schema.Schema, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		schema: s,
		clock:  timex.NewMonotonicClock(timex.RealClock{}),
		ids:    UUIDv7Generator{},
		locks:  keylock.New(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("module", "engine")
	return e
}

// Schema returns the schema the engine was built with.
func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

func (e *Engine) records(db dbx.DBTX, t *schema.Table) records.Repository {
	return records.NewSQLiteRepository(db, t)
}

func (e *Engine) cursors(db dbx.DBTX) cursors.Repository {
	return cursors.NewSQLiteRepository(db)
}

// withRecord runs fn holding the record's lock inside one transaction.
func (e *Engine) withRecord(ctx context.Context, t *schema.Table, id string, fn func(ctx context.Context, repo records.Repository) error) error {
	unlock, err := e.locks.Lock(ctx, t.Name+":"+id)
	if err != nil {
		return err
	}
	defer unlock()

	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, e.records(tx, t))
	})
}

func (e *Engine) table(name string) (*schema.Table, error) {
	t, err := e.schema.Table(name)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return t, nil
}
