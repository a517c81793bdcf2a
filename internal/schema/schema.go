// Package schema describes the synchronised record types: their tables,
// data columns and how each column takes part in replication. A schema is
// loaded from YAML and drives the generic repositories on both sides.
package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/dmitrijs2005/offsync/internal/common"
	"gopkg.in/yaml.v3"
)

// Reserved column names present on every synchronised table.
const (
	ColumnID                 = "id"
	ColumnIsDeleted          = "is_deleted"
	ColumnLastSyncedAt       = "last_synced_at"
	ColumnDirtyFlag          = "dirty_flag"
	ColumnColumnSyncMetadata = "column_sync_metadata"
)

var reserved = map[string]struct{}{
	ColumnID:                 {},
	ColumnIsDeleted:          {},
	ColumnLastSyncedAt:       {},
	ColumnDirtyFlag:          {},
	ColumnColumnSyncMetadata: {},
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeReal      ColumnType = "real"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
)

// Column is a data column of a record type.
//
// ClientOnly columns live only in the local store and never travel.
// ServerManaged columns are stamped by the central store and only flow down.
type Column struct {
	Name          string     `yaml:"name"`
	Type          ColumnType `yaml:"type"`
	Nullable      bool       `yaml:"nullable"`
	ClientOnly    bool       `yaml:"client_only"`
	ServerManaged bool       `yaml:"server_managed"`
}

// Synced reports whether the column is replicated at all.
func (c Column) Synced() bool { return !c.ClientOnly }

// Uploadable reports whether local edits of the column are sent upstream.
func (c Column) Uploadable() bool { return !c.ClientOnly && !c.ServerManaged }

type Table struct {
	Name    string   `yaml:"name"`
	Columns []Column `yaml:"columns"`
}

type Schema struct {
	Tables []*Table `yaml:"tables"`
}

// isDeletedColumn is the soft-delete flag seen as a data column.
var isDeletedColumn = Column{Name: ColumnIsDeleted, Type: TypeBoolean}

// Parse decodes and validates a YAML schema document.
func Parse(data []byte) (*Schema, error) {
	return Load(bytes.NewReader(data))
}

// Load decodes and validates a YAML schema from r.
func Load(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	s := &Schema{}
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile reads a YAML schema from path.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (s *Schema) Validate() error {
	if len(s.Tables) == 0 {
		return fmt.Errorf("%w: schema declares no tables", common.ErrorValidation)
	}
	seen := make(map[string]struct{}, len(s.Tables))
	for _, t := range s.Tables {
		if t == nil {
			return fmt.Errorf("%w: empty table entry", common.ErrorValidation)
		}
		if !identRe.MatchString(t.Name) {
			return fmt.Errorf("%w: invalid table name %q", common.ErrorValidation, t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: duplicate table %q", common.ErrorValidation, t.Name)
		}
		seen[t.Name] = struct{}{}
		if err := t.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if !identRe.MatchString(c.Name) {
			return fmt.Errorf("%w: %s: invalid column name %q", common.ErrorValidation, t.Name, c.Name)
		}
		if _, ok := reserved[c.Name]; ok {
			return fmt.Errorf("%w: %s: column %q is reserved", common.ErrorValidation, t.Name, c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate column %q", common.ErrorValidation, t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}

		switch c.Type {
		case TypeText, TypeInteger, TypeReal, TypeBoolean, TypeTimestamp:
		default:
			return fmt.Errorf("%w: %s.%s: unsupported type %q", common.ErrorValidation, t.Name, c.Name, c.Type)
		}
		if c.ClientOnly && c.ServerManaged {
			return fmt.Errorf("%w: %s.%s: column cannot be both client_only and server_managed", common.ErrorValidation, t.Name, c.Name)
		}
		// rows created by a download carry no client-only values, and rows
		// created locally carry no server-managed values until stamped
		if (c.ClientOnly || c.ServerManaged) && !c.Nullable {
			return fmt.Errorf("%w: %s.%s: client_only and server_managed columns must be nullable", common.ErrorValidation, t.Name, c.Name)
		}
	}
	return nil
}

// Table looks a table up by name.
func (s *Schema) Table(name string) (*Table, error) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", common.ErrorUnknownTable, name)
}

// TableNames lists the tables in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Column looks up a data column, is_deleted included.
func (t *Table) Column(name string) (Column, error) {
	if name == ColumnIsDeleted {
		return isDeletedColumn, nil
	}
	for _, c := range t.Columns {
		if c.Name == name {
			return c, nil
		}
	}
	return Column{}, fmt.Errorf("%w: %s.%s", common.ErrorUnknownColumn, t.Name, name)
}

// DataColumns returns every declared column followed by is_deleted.
func (t *Table) DataColumns() []Column {
	cols := make([]Column, 0, len(t.Columns)+1)
	cols = append(cols, t.Columns...)
	return append(cols, isDeletedColumn)
}

// SyncedColumns returns the columns carried by downloads and tracked in
// column sync metadata.
func (t *Table) SyncedColumns() []Column {
	return t.filter(Column.Synced)
}

// UploadColumns returns the columns a client may edit and upload.
func (t *Table) UploadColumns() []Column {
	return t.filter(Column.Uploadable)
}

// SyncedColumnNames is SyncedColumns reduced to names.
func (t *Table) SyncedColumnNames() []string {
	return names(t.SyncedColumns())
}

// UploadColumnNames is UploadColumns reduced to names.
func (t *Table) UploadColumnNames() []string {
	return names(t.UploadColumns())
}

func (t *Table) filter(keep func(Column) bool) []Column {
	var cols []Column
	for _, c := range t.DataColumns() {
		if keep(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
