package records

import (
	"context"

	"github.com/dmitrijs2005/offsync/internal/client/models"
)

// Repository reads and writes the rows of one synchronised table.
// Implementations are bound to a dbx.DBTX, so the same code runs inside
// or outside a transaction.
type Repository interface {
	// Get returns the record, or nil when the id is unknown.
	Get(ctx context.Context, id string) (*models.Record, error)

	// Insert stores a new record. A duplicate id yields common.ErrorAlreadyExists.
	Insert(ctx context.Context, rec *models.Record) error

	// Update overwrites every column of an existing record.
	// An unknown id yields common.ErrorNotFound.
	Update(ctx context.Context, rec *models.Record) error

	// ListActive returns records that are not soft-deleted, ordered by id.
	ListActive(ctx context.Context) ([]*models.Record, error)

	// ListDirty returns records whose dirty flag is set.
	ListDirty(ctx context.Context) ([]*models.Record, error)

	// Counts returns the number of records per dirty flag.
	Counts(ctx context.Context) (Counts, error)
}

// Counts summarises a table for status reporting.
type Counts struct {
	Total         int
	PendingInsert int
	PendingUpdate int
	Deleted       int
}
