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

// UploadFailure is a row the server refused.
type UploadFailure struct {
	Table string
	ID    string
	Code  string
}

// UploadReport summarises how an upload response was applied.
type UploadReport struct {
	Applied  int
	Failures []UploadFailure
}

// RetrieveUploadRequest captures a cutoff once and collects every record
// with changes made at or before it. Pending inserts carry all uploadable
// columns; pending updates carry only the columns dirtied by the cutoff.
// The returned cutoff must be handed to StoreUploadResponse unchanged.
//
// The cutoff is read inside a write transaction. Local writers stamp their
// markers inside their own write transaction, so every marker older than
// the cutoff belongs to a committed write and is visible to the scan.
func (e *Engine) RetrieveUploadRequest(ctx context.Context) (time.Time, *wire.UploadRequest, error) {
	var cutoff time.Time
	req := &wire.UploadRequest{Tables: make(map[string][]*wire.UploadRow)}

	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		cutoff = e.clock.Now()
		for _, t := range e.schema.Tables {
			dirty, err := e.records(tx, t).ListDirty(ctx)
			if err != nil {
				return err
			}

			var rows []*wire.UploadRow
			for _, rec := range dirty {
				if row := uploadRow(t, rec, cutoff); row != nil {
					rows = append(rows, row)
				}
			}
			if len(rows) > 0 {
				req.Tables[t.Name] = rows
			}
		}
		return nil
	})
	if err != nil {
		return time.Time{}, nil, err
	}

	e.logger.Debug(ctx, "upload request assembled", "cutoff", cutoff)
	return cutoff, req, nil
}

func uploadRow(t *schema.Table, rec *models.Record, cutoff time.Time) *wire.UploadRow {
	md := rec.Metadata
	switch rec.DirtyFlag {
	case syncmeta.DirtyInsert:
		if md.InsertTime == nil || md.InsertTime.After(cutoff) {
			return nil
		}
		values := make(map[string]any)
		for _, c := range t.UploadColumns() {
			values[c.Name] = rec.Values[c.Name]
		}
		return &wire.UploadRow{Op: wire.OpInsert, ID: rec.ID, Values: values}

	case syncmeta.DirtyUpdate:
		values := make(map[string]any)
		for _, c := range t.UploadColumns() {
			if md.DirtyBy(c.Name, cutoff) {
				values[c.Name] = rec.Values[c.Name]
			}
		}
		if len(values) == 0 {
			return nil
		}
		return &wire.UploadRow{Op: wire.OpUpdate, ID: rec.ID, Values: values}
	}
	return nil
}

// StoreUploadResponse folds the server's answer back into dirty markers.
// For every acknowledged row, markers set at or before cutoff are cleared
// and columns record the server's synced_at. Refused rows are reported and
// left untouched. A failing record does not stop the others; all such
// errors are returned joined.
func (e *Engine) StoreUploadResponse(ctx context.Context, cutoff time.Time, resp *wire.UploadResponse) (*UploadReport, error) {
	report := &UploadReport{}
	if resp == nil {
		return report, nil
	}

	var errs []error
	for name, results := range resp.Tables {
		t, err := e.table(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, res := range results {
			if res == nil {
				report.Failures = append(report.Failures, UploadFailure{Table: t.Name, Code: common.CodeUnknown})
				e.logger.Warn(ctx, "upload response carries an empty result", "table", t.Name)
				continue
			}
			if !res.OK() {
				code := res.Error
				if code == "" {
					code = common.CodeUnknown
				}
				report.Failures = append(report.Failures, UploadFailure{Table: t.Name, ID: res.ID, Code: code})
				e.logger.Warn(ctx, "upload rejected", "table", t.Name, "id", res.ID, "code", code)
				continue
			}
			if err := e.acknowledge(ctx, t, res.ID, cutoff, *res.SyncedAt); err != nil {
				errs = append(errs, err)
				continue
			}
			report.Applied++
		}
	}

	e.logger.Info(ctx, "upload response applied", "applied", report.Applied, "failures", len(report.Failures))
	return report, errors.Join(errs...)
}

func (e *Engine) acknowledge(ctx context.Context, t *schema.Table, id string, cutoff, syncedAt time.Time) error {
	return e.withRecord(ctx, t, id, func(ctx context.Context, repo records.Repository) error {
		rec, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("acknowledged %s[%s]: %w", t.Name, id, common.ErrorNotFound)
		}
		if rec.DirtyFlag == syncmeta.DirtyNone {
			return nil
		}

		md := rec.Metadata
		md.ClearInsertTimeIfSynced(cutoff)
		uploadable := t.UploadColumnNames()
		for _, name := range uploadable {
			md.ClearIfSynced(name, cutoff, syncedAt)
		}

		switch {
		case md.InsertTime != nil:
			// Re-queued as an insert after the snapshot; the server does not hold it.
			rec.DirtyFlag = syncmeta.DirtyInsert
		case md.AnyDirty(uploadable):
			rec.DirtyFlag = syncmeta.DirtyUpdate
		default:
			rec.DirtyFlag = syncmeta.DirtyNone
		}
		return repo.Update(ctx, rec)
	})
}

// RequeueAsUpdate turns a pending insert the server already holds into a
// pending update of every uploadable column. Callers use it after an
// upload reported record_already_exists.
func (e *Engine) RequeueAsUpdate(ctx context.Context, table, id string) error {
	t, err := e.table(table)
	if err != nil {
		return err
	}
	return e.withRecord(ctx, t, id, func(ctx context.Context, repo records.Repository) error {
		rec, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%s[%s]: %w", t.Name, id, common.ErrorNotFound)
		}
		now := e.clock.Now()
		rec.Metadata.InsertTime = nil
		for _, name := range t.UploadColumnNames() {
			rec.Metadata.MarkDirty(name, now)
		}
		rec.DirtyFlag = syncmeta.DirtyUpdate
		return repo.Update(ctx, rec)
	})
}

// RequeueAsInsert turns a pending update the server does not know into a
// pending insert. Callers use it after an upload reported record_not_found.
func (e *Engine) RequeueAsInsert(ctx context.Context, table, id string) error {
	t, err := e.table(table)
	if err != nil {
		return err
	}
	return e.withRecord(ctx, t, id, func(ctx context.Context, repo records.Repository) error {
		rec, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%s[%s]: %w", t.Name, id, common.ErrorNotFound)
		}
		rec.Metadata.SetInsertTime(e.clock.Now())
		rec.DirtyFlag = syncmeta.DirtyInsert
		return repo.Update(ctx, rec)
	})
}
