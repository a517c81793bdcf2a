package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	wire "github.com/dmitrijs2005/offsync/internal/models"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/dmitrijs2005/offsync/internal/syncmeta"
)

// RetrieveDownloadRequest builds the next download request from the stored
// cursors. With no cursor at all it returns nil: a clean download. Tables
// without a cursor are left out of the offsets and come back in full.
func (e *Engine) RetrieveDownloadRequest(ctx context.Context) (*wire.DownloadRequest, error) {
	stored, err := e.cursors(e.db).List(ctx)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}

	req := &wire.DownloadRequest{Offsets: make(map[string]time.Time, len(stored))}
	for _, name := range e.schema.TableNames() {
		if at, ok := stored[name]; ok {
			req.Offsets[name] = at
		}
	}
	return req, nil
}

// ResetCursors forgets the download cursors of the named tables, or of every
// table when none is named. The next download of a reset table is a clean
// one; local rows stay and the record gate skips those already current.
func (e *Engine) ResetCursors(ctx context.Context, tables ...string) error {
	for _, name := range tables {
		if _, err := e.table(name); err != nil {
			return err
		}
	}

	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := e.cursors(tx)
		if len(tables) == 0 {
			return repo.Clear(ctx)
		}
		for _, name := range tables {
			if err := repo.Delete(ctx, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info(ctx, "download cursors reset", "tables", tables)
	return nil
}

// StoreDownloadResponse merges every inbound row, each in its own
// transaction, and advances a table's cursor once all its rows applied.
// A table with a failing row keeps its cursor; other tables proceed.
func (e *Engine) StoreDownloadResponse(ctx context.Context, resp *wire.DownloadResponse) error {
	if resp == nil {
		return nil
	}

	var errs []error
	for name, changes := range resp.Tables {
		if changes == nil {
			continue
		}
		t, err := e.table(name)
		if err != nil {
			e.logger.Warn(ctx, "download for unknown table ignored", "table", name)
			continue
		}
		if err := e.storeTable(ctx, t, changes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) storeTable(ctx context.Context, t *schema.Table, changes *wire.TableChanges) error {
	for _, row := range changes.Rows {
		if row == nil {
			return fmt.Errorf("apply %s: %w: empty row", t.Name, common.ErrorValidation)
		}
		if err := e.applyRow(ctx, t, row); err != nil {
			e.logger.Error(ctx, "download row failed", "table", t.Name, "id", row.ID, "error", err)
			return fmt.Errorf("apply %s[%s]: %w", t.Name, row.ID, err)
		}
	}
	if err := e.advanceCursor(ctx, t.Name, changes.CutoffAt); err != nil {
		return err
	}
	e.logger.Info(ctx, "download applied", "table", t.Name, "rows", len(changes.Rows), "cutoff_at", changes.CutoffAt)
	return nil
}

// advanceCursor stores cutoff unless a later cursor is already stored,
// which happens when an older download round finishes last.
func (e *Engine) advanceCursor(ctx context.Context, table string, cutoff time.Time) error {
	unlock, err := e.locks.Lock(ctx, "cursor:"+table)
	if err != nil {
		return err
	}
	defer unlock()

	repo := e.cursors(e.db)
	current, err := repo.Get(ctx, table)
	if err != nil {
		return err
	}
	if current != nil && current.After(cutoff) {
		return nil
	}
	return repo.Set(ctx, table, cutoff)
}

// inboundValues keeps the synchronised columns present in the row.
func inboundValues(t *schema.Table, row *wire.DownloadRow) (map[string]any, error) {
	out := make(map[string]any, len(row.Values))
	for name, v := range row.Values {
		c, err := t.Column(name)
		if err != nil || !c.Synced() {
			continue
		}
		n, err := c.Normalize(v)
		if err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}

func (e *Engine) applyRow(ctx context.Context, t *schema.Table, row *wire.DownloadRow) error {
	values, err := inboundValues(t, row)
	if err != nil {
		return err
	}
	syncedAt := row.LastSyncedAt.UTC()

	return e.withRecord(ctx, t, row.ID, func(ctx context.Context, repo records.Repository) error {
		rec, err := repo.Get(ctx, row.ID)
		if err != nil {
			return err
		}

		if rec == nil {
			rec = &models.Record{
				ID:           row.ID,
				Values:       make(map[string]any, len(t.Columns)+1),
				LastSyncedAt: &syncedAt,
				DirtyFlag:    syncmeta.DirtyNone,
				Metadata:     syncmeta.New(),
			}
			for _, c := range t.DataColumns() {
				rec.Values[c.Name] = values[c.Name]
			}
			e.logger.Debug(ctx, "download inserted record", "table", t.Name, "id", row.ID)
			return repo.Insert(ctx, rec)
		}

		if rec.LastSyncedAt != nil && !syncedAt.After(*rec.LastSyncedAt) {
			e.logger.Debug(ctx, "download row not newer, skipped", "table", t.Name, "id", row.ID)
			return nil
		}

		md := rec.Metadata
		for _, c := range t.SyncedColumns() {
			v, ok := values[c.Name]
			if !ok {
				continue
			}
			if md.IsDirty(c.Name) {
				continue
			}
			if last := md.LastSyncedAt(c.Name); last != nil && last.After(syncedAt) {
				continue
			}
			rec.Values[c.Name] = v
			md.MarkSynced(c.Name, syncedAt)
		}
		rec.LastSyncedAt = &syncedAt
		return repo.Update(ctx, rec)
	})
}
