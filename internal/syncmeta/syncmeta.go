// Package syncmeta models the per-record column_sync_metadata document:
// when each column was last written locally (dirty_at), when a value for
// it was last confirmed by the central store (column_last_synced_at) and
// when the record was inserted locally but not yet uploaded (.insert_time).
//
// Decoding and encoding are lossless. Keys and fields this package does not
// understand are carried through unchanged, and absent timestamps are
// omitted rather than written as null.
package syncmeta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offsync/internal/timex"
)

// InsertTimeKey is the document key holding the pending insert time.
const InsertTimeKey = ".insert_time"

const (
	fieldDirtyAt            = "dirty_at"
	fieldColumnLastSyncedAt = "column_last_synced_at"
)

// DirtyFlag is the record-level upload state.
type DirtyFlag string

const (
	DirtyNone   DirtyFlag = ""
	DirtyInsert DirtyFlag = "insert"
	DirtyUpdate DirtyFlag = "update"
)

// Metadata holds the sync state of one column.
type Metadata struct {
	DirtyAt            *time.Time
	ColumnLastSyncedAt *time.Time
	// Extra keeps fields other than the two above.
	Extra map[string]json.RawMessage
}

// ColumnSyncMetadata is the whole document for one record.
type ColumnSyncMetadata struct {
	InsertTime *time.Time
	Columns    map[string]*Metadata
	// Unknown keeps top-level keys that are not column entries.
	Unknown map[string]json.RawMessage
}

func New() *ColumnSyncMetadata {
	return &ColumnSyncMetadata{
		Columns: make(map[string]*Metadata),
		Unknown: make(map[string]json.RawMessage),
	}
}

// Decode parses a stored document. Empty input yields an empty document.
func Decode(raw []byte) (*ColumnSyncMetadata, error) {
	m := New()
	if len(bytes.TrimSpace(raw)) == 0 {
		return m, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode column sync metadata: %w", err)
	}

	for key, value := range doc {
		if key == InsertTimeKey {
			t, err := decodeTime(value)
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", InsertTimeKey, err)
			}
			m.InsertTime = t
			continue
		}
		if col, ok := decodeColumn(value); ok {
			m.Columns[key] = col
			continue
		}
		m.Unknown[key] = value
	}
	return m, nil
}

// decodeColumn accepts any JSON object whose known fields are valid
// timestamps. Anything else is left to the unknown bag.
func decodeColumn(raw json.RawMessage) (*Metadata, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	md := &Metadata{}
	for name, value := range fields {
		switch name {
		case fieldDirtyAt:
			t, err := decodeTime(value)
			if err != nil {
				return nil, false
			}
			md.DirtyAt = t
		case fieldColumnLastSyncedAt:
			t, err := decodeTime(value)
			if err != nil {
				return nil, false
			}
			md.ColumnLastSyncedAt = t
		default:
			if md.Extra == nil {
				md.Extra = make(map[string]json.RawMessage)
			}
			md.Extra[name] = value
		}
	}
	return md, true
}

func decodeTime(raw json.RawMessage) (*time.Time, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	t, err := timex.ParseSortable(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Encode renders the document with sorted keys and no insignificant space.
func (m *ColumnSyncMetadata) Encode() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(m.Columns)+len(m.Unknown)+1)
	for key, value := range m.Unknown {
		doc[key] = value
	}
	for key, col := range m.Columns {
		raw, err := col.encode()
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata for %s: %w", key, err)
		}
		doc[key] = raw
	}
	if m.InsertTime != nil {
		doc[InsertTimeKey] = encodeTime(*m.InsertTime)
	}

	raw, err := marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column sync metadata: %w", err)
	}
	return raw, nil
}

// marshal encodes v compactly without HTML escaping so unknown values
// come back out exactly as they went in.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (md *Metadata) encode() (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, len(md.Extra)+2)
	for name, value := range md.Extra {
		fields[name] = value
	}
	if md.DirtyAt != nil {
		fields[fieldDirtyAt] = encodeTime(*md.DirtyAt)
	}
	if md.ColumnLastSyncedAt != nil {
		fields[fieldColumnLastSyncedAt] = encodeTime(*md.ColumnLastSyncedAt)
	}
	return marshal(fields)
}

func encodeTime(t time.Time) json.RawMessage {
	return json.RawMessage(`"` + timex.FormatSortable(t) + `"`)
}
