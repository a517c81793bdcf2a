// Package models holds the sync payloads exchanged between the local and
// the central store. They travel as JSON; numbers are decoded as
// json.Number so integers keep full precision until schema normalisation.
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// DownloadRequest carries the client's per-table cursors. A nil request
// asks for a clean download: every live record of every table.
type DownloadRequest struct {
	Offsets map[string]time.Time `json:"offsets"`
}

// DownloadResponse carries changed records grouped by table.
type DownloadResponse struct {
	Tables map[string]*TableChanges `json:"tables"`
}

// TableChanges is one table's slice of a download. CutoffAt is the
// instant the server read up to and becomes the table's next cursor.
type TableChanges struct {
	CutoffAt time.Time      `json:"cutoff_at"`
	Rows     []*DownloadRow `json:"rows"`
}

// DownloadRow is a record as seen by the central store. Values holds
// every downloadable column, is_deleted included.
type DownloadRow struct {
	ID           string         `json:"id"`
	LastSyncedAt time.Time      `json:"last_synced_at"`
	Values       map[string]any `json:"values"`
}

type UploadOp string

const (
	OpInsert UploadOp = "insert"
	OpUpdate UploadOp = "update"
)

// UploadRequest carries pending local changes grouped by table.
type UploadRequest struct {
	Tables map[string][]*UploadRow `json:"tables"`
}

// UploadRow is a pending insert (all uploadable columns) or update
// (only columns dirtied before the cutoff).
type UploadRow struct {
	Op     UploadOp       `json:"op"`
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// UploadResponse reports the outcome of every uploaded row.
type UploadResponse struct {
	Tables map[string][]*UploadResult `json:"tables"`
}

// UploadResult holds either SyncedAt or an Error code.
type UploadResult struct {
	ID       string     `json:"id"`
	SyncedAt *time.Time `json:"synced_at,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func (r *UploadResult) OK() bool {
	return r.Error == "" && r.SyncedAt != nil
}

// Empty reports whether the request carries no rows.
func (r *UploadRequest) Empty() bool {
	if r == nil {
		return true
	}
	for _, rows := range r.Tables {
		if len(rows) > 0 {
			return false
		}
	}
	return true
}

// Rows counts the rows across all tables.
func (r *DownloadResponse) Rows() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, t := range r.Tables {
		if t != nil {
			n += len(t.Rows)
		}
	}
	return n
}

// Decode unmarshals a sync payload keeping numbers as json.Number.
func Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
