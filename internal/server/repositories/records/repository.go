package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offsync/internal/models"
)

// Repository stores the authoritative rows of one synchronised table.
type Repository interface {
	// SelectChanged returns rows with since < last_synced_at <= until,
	// ordered by last_synced_at. A nil since selects every live row.
	SelectChanged(ctx context.Context, since *time.Time, until time.Time) ([]*models.DownloadRow, error)

	// Insert creates a row. A duplicate id yields common.ErrorAlreadyExists.
	Insert(ctx context.Context, id string, values map[string]any, syncedAt time.Time) error

	// Update sets the given columns only. An unknown id yields common.ErrorNotFound.
	Update(ctx context.Context, id string, values map[string]any, syncedAt time.Time) error
}
