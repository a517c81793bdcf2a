package schema

import (
	"fmt"
	"strings"
)

var sqliteTypes = map[ColumnType]string{
	TypeText:      "TEXT",
	TypeInteger:   "INTEGER",
	TypeReal:      "REAL",
	TypeBoolean:   "INTEGER",
	TypeTimestamp: "TEXT",
}

var postgresTypes = map[ColumnType]string{
	TypeText:      "TEXT",
	TypeInteger:   "BIGINT",
	TypeReal:      "DOUBLE PRECISION",
	TypeBoolean:   "BOOLEAN",
	TypeTimestamp: "TIMESTAMPTZ",
}

// Quote returns a double-quoted SQL identifier. Names are validated
// against a lowercase identifier pattern before they get here.
func Quote(name string) string {
	return `"` + name + `"`
}

// LocalDDL returns idempotent statements creating the table in the local
// SQLite store. Timestamps are TEXT in timex.SortableLayout and every data
// column is nullable at the storage level; required columns are checked
// on write.
func (t *Table) LocalDDL() []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", Quote(t.Name))
	fmt.Fprintf(&b, "  %s TEXT PRIMARY KEY NOT NULL,\n", ColumnID)
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "  %s %s,\n", Quote(c.Name), sqliteTypes[c.Type])
	}
	fmt.Fprintf(&b, "  %s INTEGER NOT NULL DEFAULT 0,\n", ColumnIsDeleted)
	fmt.Fprintf(&b, "  %s TEXT,\n", ColumnLastSyncedAt)
	fmt.Fprintf(&b, "  %s TEXT,\n", ColumnDirtyFlag)
	fmt.Fprintf(&b, "  %s TEXT NOT NULL DEFAULT '{}'\n", ColumnColumnSyncMetadata)
	b.WriteString(")")

	return []string{
		b.String(),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			Quote(t.Name+"_dirty_flag_idx"), Quote(t.Name), ColumnDirtyFlag),
	}
}

// CentralDDL returns idempotent statements creating the table in the
// central PostgreSQL store. Client-only columns are left out.
func (t *Table) CentralDDL() []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", Quote(t.Name))
	fmt.Fprintf(&b, "  %s TEXT PRIMARY KEY,\n", ColumnID)
	for _, c := range t.Columns {
		if c.ClientOnly {
			continue
		}
		null := " NOT NULL"
		if c.Nullable {
			null = ""
		}
		fmt.Fprintf(&b, "  %s %s%s,\n", Quote(c.Name), postgresTypes[c.Type], null)
	}
	fmt.Fprintf(&b, "  %s BOOLEAN NOT NULL DEFAULT FALSE,\n", ColumnIsDeleted)
	fmt.Fprintf(&b, "  %s TIMESTAMPTZ NOT NULL\n", ColumnLastSyncedAt)
	b.WriteString(")")

	return []string{
		b.String(),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			Quote(t.Name+"_last_synced_at_idx"), Quote(t.Name), ColumnLastSyncedAt),
	}
}
