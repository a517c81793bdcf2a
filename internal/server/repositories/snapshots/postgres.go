package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, s *Snapshot) error {
	query := `
		INSERT INTO snapshots (object_key, cutoff_at, rows, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (object_key) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, s.Key, s.CutoffAt, s.Rows, s.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Latest(ctx context.Context) (*Snapshot, error) {
	query := `SELECT object_key, cutoff_at, rows, created_at FROM snapshots ORDER BY cutoff_at DESC LIMIT 1`

	var s Snapshot
	err := r.db.QueryRowContext(ctx, query).Scan(&s.Key, &s.CutoffAt, &s.Rows, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	s.CutoffAt = s.CutoffAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
