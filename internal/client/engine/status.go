package engine

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/repositories/records"
)

// TableStatus describes the sync state of one table.
type TableStatus struct {
	Table  string
	Cursor *time.Time
	records.Counts
}

// Status reports the cursor and pending counts of every table.
func (e *Engine) Status(ctx context.Context) ([]TableStatus, error) {
	cursors := e.cursors(e.db)

	out := make([]TableStatus, 0, len(e.schema.Tables))
	for _, t := range e.schema.Tables {
		cursor, err := cursors.Get(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		counts, err := e.records(e.db, t).Counts(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, TableStatus{Table: t.Name, Cursor: cursor, Counts: counts})
	}
	return out, nil
}
