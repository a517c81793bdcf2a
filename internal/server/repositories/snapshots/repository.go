// Package snapshots records the clean-download snapshots published to
// object storage.
package snapshots

import (
	"context"
	"time"
)

// Snapshot is one published object.
type Snapshot struct {
	Key       string
	CutoffAt  time.Time
	Rows      int
	CreatedAt time.Time
}

type Repository interface {
	// Save records a snapshot. Saving the same key twice is a no-op.
	Save(ctx context.Context, s *Snapshot) error

	// Latest returns the snapshot with the greatest cutoff, or nil.
	Latest(ctx context.Context) (*Snapshot, error)
}
