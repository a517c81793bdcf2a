// Package services contains the server-side business logic. SyncService
// answers download and upload requests against the central store.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/models"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/dmitrijs2005/offsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/offsync/internal/timex"
)

// SyncService is the authoritative side of the protocol. Every write
// stamps last_synced_at with the service clock, which is truncated to
// microseconds so stamps survive PostgreSQL unchanged.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	schema      *schema.Schema
	clock       timex.Clock
	logger      logging.Logger
}

type SyncOption func(*SyncService)

func WithClock(c timex.Clock) SyncOption {
	return func(s *SyncService) { s.clock = timex.MicrosecondClock{Base: c} }
}

func WithLogger(l logging.Logger) SyncOption {
	return func(s *SyncService) { s.logger = l }
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, s *schema.Schema, opts ...SyncOption) *SyncService {
	svc := &SyncService{
		db:          db,
		repomanager: m,
		schema:      s,
		clock:       timex.MicrosecondClock{Base: timex.RealClock{}},
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = svc.logger.With("module", "sync_service")
	return svc
}

// ProcessDownloadRequest returns, per table, the rows changed after the
// client's offset and up to a single cutoff. A nil request, or a table
// without an offset, gets every live row.
//
// The cutoff is read with the write fence drained, so every row stamped at
// or before it is committed when the tables are read. It sits one
// microsecond below the reading: a writer admitted after the drain may
// stamp the same microsecond, and that row must fall after the cutoff.
func (s *SyncService) ProcessDownloadRequest(ctx context.Context, req *models.DownloadRequest) (*models.DownloadResponse, error) {
	var cutoff time.Time
	err := s.repomanager.DrainWrites(ctx, s.db, func() {
		cutoff = s.clock.Now().Add(-time.Microsecond)
	})
	if err != nil {
		return nil, common.Unhandled("download cutoff", err)
	}

	if req != nil {
		for name := range req.Offsets {
			if _, err := s.schema.Table(name); err != nil {
				s.logger.Warn(ctx, "download offset for unknown table ignored", "table", name)
			}
		}
	}

	resp := &models.DownloadResponse{Tables: make(map[string]*models.TableChanges, len(s.schema.Tables))}
	for _, t := range s.schema.Tables {
		var since *time.Time
		if req != nil {
			if at, ok := req.Offsets[t.Name]; ok {
				at = at.UTC()
				since = &at
			}
		}

		rows, err := s.repomanager.Records(s.db, t).SelectChanged(ctx, since, cutoff)
		if err != nil {
			return nil, common.Unhandled("download "+t.Name, err)
		}
		if rows == nil {
			rows = []*models.DownloadRow{}
		}
		resp.Tables[t.Name] = &models.TableChanges{CutoffAt: cutoff, Rows: rows}
	}

	s.logger.Info(ctx, "download served", "rows", resp.Rows(), "cutoff_at", cutoff, "clean", req == nil)
	return resp, nil
}

// ProcessUploadRequest applies every row on its own and reports a result
// per row. A failing row never stops its siblings. Rows of unknown tables
// are answered with the unknown code.
func (s *SyncService) ProcessUploadRequest(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error) {
	resp := &models.UploadResponse{Tables: make(map[string][]*models.UploadResult)}
	if req == nil {
		return resp, nil
	}

	failed := 0
	for name, rows := range req.Tables {
		t, tableErr := s.schema.Table(name)
		if tableErr != nil {
			s.logger.Warn(ctx, "upload for unknown table rejected", "table", name, "rows", len(rows))
		}

		results := make([]*models.UploadResult, 0, len(rows))
		for _, row := range rows {
			res := &models.UploadResult{ID: row.ID}
			switch {
			case tableErr != nil:
				res.Error = common.CodeUnknown
			default:
				at, err := s.apply(ctx, t, row)
				if err != nil {
					s.logger.Warn(ctx, "upload row rejected", "table", name, "id", row.ID, "error", err)
					res.Error = common.UploadErrorCode(err)
				} else {
					res.SyncedAt = &at
				}
			}
			if res.Error != "" {
				failed++
			}
			results = append(results, res)
		}
		resp.Tables[name] = results
	}

	s.logger.Info(ctx, "upload processed", "tables", len(req.Tables), "failed", failed)
	return resp, nil
}

// apply writes one uploaded row and returns its synced_at. Server-managed
// columns are stamped with the same instant. The stamp is taken under the
// write fence, inside the transaction that writes it.
func (s *SyncService) apply(ctx context.Context, t *schema.Table, row *models.UploadRow) (time.Time, error) {
	if row.ID == "" {
		return time.Time{}, fmt.Errorf("%w: missing id", common.ErrorValidation)
	}
	values, err := t.NormalizeValues(row.Values)
	if err != nil {
		return time.Time{}, err
	}
	for name := range values {
		c, _ := t.Column(name)
		if !c.Uploadable() {
			return time.Time{}, fmt.Errorf("%w: %s.%s cannot be uploaded", common.ErrorValidation, t.Name, name)
		}
	}

	if row.Op != models.OpInsert && row.Op != models.OpUpdate {
		return time.Time{}, fmt.Errorf("%w: unknown op %q", common.ErrorValidation, row.Op)
	}

	var now time.Time
	err = s.repomanager.WithWriteFence(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		now = s.clock.Now()
		for _, c := range t.Columns {
			if c.ServerManaged {
				values[c.Name] = now
			}
		}

		repo := s.repomanager.Records(tx, t)
		if row.Op == models.OpInsert {
			return repo.Insert(ctx, row.ID, values, now)
		}
		return repo.Update(ctx, row.ID, values, now)
	})
	if err != nil {
		return time.Time{}, err
	}

	s.logger.Debug(ctx, "upload row applied", "table", t.Name, "id", row.ID, "op", string(row.Op))
	return now, nil
}
