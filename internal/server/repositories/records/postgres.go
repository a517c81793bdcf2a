// Package records provides the PostgreSQL-backed central copy of
// synchronised tables.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/models"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository for one table over a dbx.DBTX.
type PostgresRepository struct {
	db      dbx.DBTX
	table   *schema.Table
	columns []schema.Column
}

// NewPostgresRepository constructs a repository bound to db and table.
func NewPostgresRepository(db dbx.DBTX, table *schema.Table) *PostgresRepository {
	return &PostgresRepository{db: db, table: table, columns: table.SyncedColumns()}
}

func (r *PostgresRepository) selectList() string {
	names := make([]string, 0, len(r.columns)+2)
	names = append(names, schema.ColumnID)
	for _, c := range r.columns {
		names = append(names, schema.Quote(c.Name))
	}
	names = append(names, schema.ColumnLastSyncedAt)
	return strings.Join(names, ", ")
}

func (r *PostgresRepository) SelectChanged(ctx context.Context, since *time.Time, until time.Time) ([]*models.DownloadRow, error) {
	var (
		query string
		args  []any
	)
	if since == nil {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = FALSE AND %s <= $1 ORDER BY %s, id`,
			r.selectList(), schema.Quote(r.table.Name), schema.ColumnIsDeleted, schema.ColumnLastSyncedAt, schema.ColumnLastSyncedAt)
		args = []any{until}
	} else {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE %s > $1 AND %s <= $2 ORDER BY %s, id`,
			r.selectList(), schema.Quote(r.table.Name), schema.ColumnLastSyncedAt, schema.ColumnLastSyncedAt, schema.ColumnLastSyncedAt)
		args = []any{*since, until}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", r.table.Name, err)
	}

	return dbx.Collect(rows, r.scanDownloadRow)
}

func (r *PostgresRepository) scanDownloadRow(rows *sql.Rows) (*models.DownloadRow, error) {
	raw := make([]any, len(r.columns))
	row := &models.DownloadRow{Values: make(map[string]any, len(r.columns))}

	dest := make([]any, 0, len(raw)+2)
	dest = append(dest, &row.ID)
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	dest = append(dest, &row.LastSyncedAt)
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	for i, c := range r.columns {
		v, err := c.Normalize(raw[i])
		if err != nil {
			return nil, fmt.Errorf("%s[%s]: %w", r.table.Name, row.ID, err)
		}
		row.Values[c.Name] = v
	}
	row.LastSyncedAt = row.LastSyncedAt.UTC()
	return row, nil
}

// assignments returns the supplied synced columns in schema order.
func (r *PostgresRepository) assignments(values map[string]any) ([]string, []any, error) {
	for name := range values {
		c, err := r.table.Column(name)
		if err != nil {
			return nil, nil, err
		}
		if !c.Synced() {
			return nil, nil, fmt.Errorf("%w: %s.%s is client-only", common.ErrorValidation, r.table.Name, name)
		}
	}

	var (
		names []string
		args  []any
	)
	for _, c := range r.columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		names = append(names, schema.Quote(c.Name))
		args = append(args, v)
	}
	return names, args, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, id string, values map[string]any, syncedAt time.Time) error {
	names, args, err := r.assignments(values)
	if err != nil {
		return err
	}

	cols := append([]string{schema.ColumnID}, names...)
	cols = append(cols, schema.ColumnLastSyncedAt)
	params := make([]string, len(cols))
	for i := range params {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		schema.Quote(r.table.Name), strings.Join(cols, ", "), strings.Join(params, ", "))

	args = append([]any{id}, args...)
	args = append(args, syncedAt)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s[%s]: %w", r.table.Name, id, common.ErrorAlreadyExists)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, values map[string]any, syncedAt time.Time) error {
	names, args, err := r.assignments(values)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(names)+1)
	for i, name := range names {
		sets = append(sets, fmt.Sprintf("%s = $%d", name, i+1))
	}
	sets = append(sets, fmt.Sprintf("%s = $%d", schema.ColumnLastSyncedAt, len(names)+1))
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`,
		schema.Quote(r.table.Name), strings.Join(sets, ", "), len(names)+2)

	args = append(args, syncedAt, id)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s[%s]: %w", r.table.Name, id, common.ErrorNotFound)
	}
	return nil
}
