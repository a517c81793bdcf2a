package cursors

import (
	"context"
	"time"
)

// Repository persists the per-table download cursor.
type Repository interface {
	// Get returns the cursor of a table, or nil when none was stored.
	Get(ctx context.Context, table string) (*time.Time, error)

	// Set upserts the cursor of a table.
	Set(ctx context.Context, table string, cutoffAt time.Time) error

	// List returns every stored cursor keyed by table.
	List(ctx context.Context) (map[string]time.Time, error)

	// Delete forgets a table's cursor; the next download of it is full.
	Delete(ctx context.Context, table string) error

	// Clear forgets every cursor.
	Clear(ctx context.Context) error
}
