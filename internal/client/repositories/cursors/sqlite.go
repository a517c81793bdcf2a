// Package cursors stores the download high-water mark of every record type
// in the local sync_cursors table. A missing row means the type has never
// been downloaded.
package cursors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, table string) (*time.Time, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT cutoff_at FROM sync_cursors WHERE table_name = ?`, table).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor[%s]: %w", table, err)
	}
	t, err := timex.ParseSortable(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cursor[%s]: %w", table, err)
	}
	return &t, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, table string, cutoffAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (table_name, cutoff_at) VALUES (?, ?)
		ON CONFLICT(table_name) DO UPDATE SET cutoff_at = excluded.cutoff_at
	`, table, timex.FormatSortable(cutoffAt))
	if err != nil {
		return fmt.Errorf("failed to set cursor[%s]: %w", table, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, table string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_cursors WHERE table_name = ?`, table)
	if err != nil {
		return fmt.Errorf("failed to delete cursor[%s]: %w", table, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_cursors`)
	if err != nil {
		return fmt.Errorf("failed to clear cursors: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT table_name, cutoff_at FROM sync_cursors`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}

	type cursor struct {
		table string
		at    time.Time
	}
	list, err := dbx.Collect(rows, func(rows *sql.Rows) (cursor, error) {
		var table, value string
		if err := rows.Scan(&table, &value); err != nil {
			return cursor{}, fmt.Errorf("failed to scan cursor row: %w", err)
		}
		t, err := timex.ParseSortable(value)
		if err != nil {
			return cursor{}, fmt.Errorf("failed to parse cursor[%s]: %w", table, err)
		}
		return cursor{table: table, at: t}, nil
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string]time.Time, len(list))
	for _, c := range list {
		result[c.table] = c.at
	}
	return result, nil
}
