// Package models defines the local representation of a synchronised record.
package models

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/dmitrijs2005/offsync/internal/syncmeta"
)

// Record is one row of a synchronised table in the local store.
//
// Values holds every data column by name, is_deleted included, in the
// normalised form produced by schema.Column.Normalize.
type Record struct {
	ID           string
	Values       map[string]any
	LastSyncedAt *time.Time
	DirtyFlag    syncmeta.DirtyFlag
	Metadata     *syncmeta.ColumnSyncMetadata
}

// Deleted reports the soft-delete flag.
func (r *Record) Deleted() bool {
	v, _ := r.Values[schema.ColumnIsDeleted].(bool)
	return v
}

var ErrIncorrectAssignment = errors.New("value must be given as name=value")

// AssignmentsFromStrings parses "name=value" pairs as typed on a command
// line. Values stay strings; schema normalisation converts them later.
// The literal "null" becomes nil.
func AssignmentsFromStrings(s []string) (map[string]any, error) {
	out := make(map[string]any, len(s))
	for _, item := range s {
		name, value, ok := strings.Cut(item, "=")
		if !ok || name == "" {
			return nil, ErrIncorrectAssignment
		}
		if value == "null" {
			out[name] = nil
			continue
		}
		out[name] = value
	}
	return out, nil
}
