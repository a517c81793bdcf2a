package engine

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/dmitrijs2005/offsync/internal/syncmeta"
)

// localValues normalises a payload and rejects columns a client must not write.
func localValues(t *schema.Table, values map[string]any) (map[string]any, error) {
	normalized, err := t.NormalizeValues(values)
	if err != nil {
		return nil, err
	}
	for name := range normalized {
		c, _ := t.Column(name)
		if c.ServerManaged {
			return nil, fmt.Errorf("%w: %s.%s is managed by the server", common.ErrorValidation, t.Name, name)
		}
	}
	return normalized, nil
}

// Insert creates a record pending upload. The id is generated here and
// is_deleted starts false. Every required synchronised column must be given.
func (e *Engine) Insert(ctx context.Context, table string, values map[string]any) (*models.Record, error) {
	t, err := e.table(table)
	if err != nil {
		return nil, err
	}
	normalized, err := localValues(t, values)
	if err != nil {
		return nil, err
	}
	if _, ok := normalized[schema.ColumnIsDeleted]; ok {
		return nil, fmt.Errorf("%w: %s cannot be set on insert", common.ErrorValidation, schema.ColumnIsDeleted)
	}

	rec := &models.Record{
		Values:    make(map[string]any, len(t.Columns)+1),
		DirtyFlag: syncmeta.DirtyInsert,
		Metadata:  syncmeta.New(),
	}
	for _, c := range t.DataColumns() {
		v, ok := normalized[c.Name]
		if !ok && !c.Nullable && c.Name != schema.ColumnIsDeleted {
			return nil, fmt.Errorf("%w: %s.%s is required", common.ErrorValidation, t.Name, c.Name)
		}
		rec.Values[c.Name] = v
	}
	rec.Values[schema.ColumnIsDeleted] = false

	rec.ID, err = e.ids.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}

	err = e.withRecord(ctx, t, rec.ID, func(ctx context.Context, repo records.Repository) error {
		rec.Metadata.SetInsertTime(e.clock.Now())
		return repo.Insert(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug(ctx, "record inserted", "table", t.Name, "id", rec.ID)
	return rec, nil
}

// Update applies partial to an existing record and marks every written
// synchronised column dirty. A clean record becomes a pending update; a
// pending insert stays a pending insert.
func (e *Engine) Update(ctx context.Context, table, id string, partial map[string]any) (*models.Record, error) {
	t, err := e.table(table)
	if err != nil {
		return nil, err
	}
	normalized, err := localValues(t, partial)
	if err != nil {
		return nil, err
	}

	var rec *models.Record
	err = e.withRecord(ctx, t, id, func(ctx context.Context, repo records.Repository) error {
		rec, err = repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%s[%s]: %w", t.Name, id, common.ErrorNotFound)
		}
		if len(normalized) == 0 {
			return nil
		}

		now := e.clock.Now()
		tracked := false
		for name, v := range normalized {
			c, _ := t.Column(name)
			rec.Values[name] = v
			if c.Uploadable() {
				rec.Metadata.MarkDirty(name, now)
				tracked = true
			}
		}
		if tracked && rec.DirtyFlag == syncmeta.DirtyNone {
			rec.DirtyFlag = syncmeta.DirtyUpdate
		}
		return repo.Update(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug(ctx, "record updated", "table", t.Name, "id", id, "flag", string(rec.DirtyFlag))
	return rec, nil
}

// Delete soft-deletes a record; it is exactly an update of is_deleted.
func (e *Engine) Delete(ctx context.Context, table, id string) (*models.Record, error) {
	return e.Update(ctx, table, id, map[string]any{schema.ColumnIsDeleted: true})
}

// Get reads a record, returning common.ErrorNotFound when the id is unknown.
func (e *Engine) Get(ctx context.Context, table, id string) (*models.Record, error) {
	t, err := e.table(table)
	if err != nil {
		return nil, err
	}
	rec, err := e.records(e.db, t).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s[%s]: %w", t.Name, id, common.ErrorNotFound)
	}
	return rec, nil
}

// Active lists the records of a table that are not soft-deleted.
func (e *Engine) Active(ctx context.Context, table string) ([]*models.Record, error) {
	t, err := e.table(table)
	if err != nil {
		return nil, err
	}
	return e.records(e.db, t).ListActive(ctx)
}
