// Package records provides the local persistence of synchronised records.
//
// A SQLiteRepository is bound to one schema table and a dbx.DBTX. Column
// lists and statements are derived from the table definition once, at
// construction. Values are normalised on the way in and out, so callers
// only ever see string, int64, float64, bool, time.Time or nil.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/dmitrijs2005/offsync/internal/syncmeta"
	"github.com/dmitrijs2005/offsync/internal/timex"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository implements Repository for one table over a DBTX.
type SQLiteRepository struct {
	db    dbx.DBTX
	table *schema.Table

	columns    []schema.Column
	selectCols string
}

// NewSQLiteRepository returns a repository for table bound to db.
func NewSQLiteRepository(db dbx.DBTX, table *schema.Table) *SQLiteRepository {
	cols := table.DataColumns()

	names := make([]string, 0, len(cols)+4)
	names = append(names, schema.ColumnID)
	for _, c := range cols {
		names = append(names, schema.Quote(c.Name))
	}
	names = append(names, schema.ColumnLastSyncedAt, schema.ColumnDirtyFlag, schema.ColumnColumnSyncMetadata)

	return &SQLiteRepository{
		db:         db,
		table:      table,
		columns:    cols,
		selectCols: strings.Join(names, ", "),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scan(s scanner) (*models.Record, error) {
	raw := make([]any, len(r.columns))
	var (
		id           string
		lastSyncedAt sql.NullString
		dirtyFlag    sql.NullString
		metadata     string
	)
	dest := make([]any, 0, len(raw)+4)
	dest = append(dest, &id)
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	dest = append(dest, &lastSyncedAt, &dirtyFlag, &metadata)

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	rec := &models.Record{
		ID:        id,
		Values:    make(map[string]any, len(r.columns)),
		DirtyFlag: syncmeta.DirtyFlag(dirtyFlag.String),
	}
	for i, c := range r.columns {
		if raw[i] == nil {
			rec.Values[c.Name] = nil
			continue
		}
		v, err := c.Normalize(raw[i])
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		rec.Values[c.Name] = v
	}
	if lastSyncedAt.Valid {
		t, err := timex.ParseSortable(lastSyncedAt.String)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		rec.LastSyncedAt = &t
	}
	md, err := syncmeta.Decode([]byte(metadata))
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	rec.Metadata = md
	return rec, nil
}

// args renders a record's columns in selectCols order, id first.
func (r *SQLiteRepository) args(rec *models.Record) ([]any, error) {
	out := make([]any, 0, len(r.columns)+4)
	out = append(out, rec.ID)
	for _, c := range r.columns {
		v := rec.Values[c.Name]
		if c.Name == schema.ColumnIsDeleted && v == nil {
			v = false
		}
		out = append(out, c.SQLiteValue(v))
	}

	var lastSyncedAt any
	if rec.LastSyncedAt != nil {
		lastSyncedAt = timex.FormatSortable(*rec.LastSyncedAt)
	}
	var dirtyFlag any
	if rec.DirtyFlag != syncmeta.DirtyNone {
		dirtyFlag = string(rec.DirtyFlag)
	}
	md := rec.Metadata
	if md == nil {
		md = syncmeta.New()
	}
	raw, err := md.Encode()
	if err != nil {
		return nil, err
	}
	return append(out, lastSyncedAt, dirtyFlag, string(raw)), nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, r.selectCols, schema.Quote(r.table.Name))
	rec, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", r.table.Name, id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *models.Record) error {
	args, err := r.args(rec)
	if err != nil {
		return fmt.Errorf("failed to insert %s[%s]: %w", r.table.Name, rec.ID, err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, schema.Quote(r.table.Name), r.selectCols, placeholders)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert %s[%s]: %w", r.table.Name, rec.ID, common.ErrorAlreadyExists)
		}
		return fmt.Errorf("failed to insert %s[%s]: %w", r.table.Name, rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, rec *models.Record) error {
	args, err := r.args(rec)
	if err != nil {
		return fmt.Errorf("failed to update %s[%s]: %w", r.table.Name, rec.ID, err)
	}

	sets := make([]string, 0, len(args)-1)
	for _, name := range strings.Split(r.selectCols, ", ")[1:] {
		sets = append(sets, name+" = ?")
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, schema.Quote(r.table.Name), strings.Join(sets, ", "))

	// id moves from the front to the WHERE clause
	args = append(args[1:], rec.ID)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s[%s]: %w", r.table.Name, rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update %s[%s]: %w", r.table.Name, rec.ID, common.ErrorNotFound)
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, where string) ([]*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY id`, r.selectCols, schema.Quote(r.table.Name), where)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", r.table.Name, err)
	}

	result, err := dbx.Collect(rows, func(rows *sql.Rows) (*models.Record, error) { return r.scan(rows) })
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", r.table.Name, err)
	}
	return result, nil
}

func (r *SQLiteRepository) ListActive(ctx context.Context) ([]*models.Record, error) {
	return r.list(ctx, schema.ColumnIsDeleted+" = 0")
}

func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.Record, error) {
	return r.list(ctx, schema.ColumnDirtyFlag+" IS NOT NULL")
}

func (r *SQLiteRepository) Counts(ctx context.Context) (Counts, error) {
	query := fmt.Sprintf(`SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN dirty_flag = 'insert' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN dirty_flag = 'update' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(is_deleted), 0)
		FROM %s`, schema.Quote(r.table.Name))

	var c Counts
	err := r.db.QueryRowContext(ctx, query).Scan(&c.Total, &c.PendingInsert, &c.PendingUpdate, &c.Deleted)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count %s: %w", r.table.Name, err)
	}
	return c, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
