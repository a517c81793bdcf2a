package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/engine"
	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/syncer"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type printer struct {
	w     io.Writer
	table bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, table: isTerminal(w)}
}

type recordLine struct {
	ID           string         `json:"id"`
	Values       map[string]any `json:"values"`
	DirtyFlag    string         `json:"dirty_flag,omitempty"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
}

func (p *printer) records(t *schema.Table, recs []*models.Record) error {
	if !p.table {
		enc := json.NewEncoder(p.w)
		for _, r := range recs {
			line := recordLine{ID: r.ID, Values: r.Values, DirtyFlag: string(r.DirtyFlag), LastSyncedAt: r.LastSyncedAt}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	cols := t.DataColumns()
	header := []string{"ID"}
	for _, c := range cols {
		header = append(header, strings.ToUpper(c.Name))
	}
	header = append(header, "DIRTY", "LAST_SYNCED_AT")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, r := range recs {
		row := []string{r.ID}
		for _, c := range cols {
			row = append(row, cell(r.Values[c.Name]))
		}
		row = append(row, cell(string(r.DirtyFlag)), cell(r.LastSyncedAt))
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

type statusLine struct {
	Table         string     `json:"table"`
	Cursor        *time.Time `json:"cursor"`
	Total         int        `json:"total"`
	PendingInsert int        `json:"pending_insert"`
	PendingUpdate int        `json:"pending_update"`
	Deleted       int        `json:"deleted"`
}

func (p *printer) status(st []engine.TableStatus) error {
	lines := make([]statusLine, 0, len(st))
	for _, s := range st {
		lines = append(lines, statusLine{
			Table: s.Table, Cursor: s.Cursor, Total: s.Total,
			PendingInsert: s.PendingInsert, PendingUpdate: s.PendingUpdate, Deleted: s.Deleted,
		})
	}

	if !p.table {
		enc := json.NewEncoder(p.w)
		for _, l := range lines {
			if err := enc.Encode(l); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tCURSOR\tTOTAL\tPENDING_INSERT\tPENDING_UPDATE\tDELETED")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", l.Table, cell(l.Cursor), l.Total, l.PendingInsert, l.PendingUpdate, l.Deleted)
	}
	return tw.Flush()
}

type failureLine struct {
	Table string `json:"table"`
	ID    string `json:"id"`
	Code  string `json:"code"`
}

type syncLine struct {
	FromSnapshot bool          `json:"from_snapshot"`
	Downloaded   int           `json:"downloaded"`
	Uploaded     int           `json:"uploaded"`
	Requeued     int           `json:"requeued"`
	Failures     []failureLine `json:"failures"`
}

func (p *printer) syncResult(res *syncer.Result) error {
	line := syncLine{
		FromSnapshot: res.FromSnapshot,
		Downloaded:   res.Downloaded,
		Uploaded:     res.Uploaded,
		Requeued:     res.Requeued,
		Failures:     make([]failureLine, 0, len(res.Failures)),
	}
	for _, f := range res.Failures {
		line.Failures = append(line.Failures, failureLine{Table: f.Table, ID: f.ID, Code: f.Code})
	}

	if !p.table {
		return json.NewEncoder(p.w).Encode(line)
	}

	if line.FromSnapshot {
		fmt.Fprintln(p.w, "bootstrapped from snapshot")
	}
	fmt.Fprintf(p.w, "downloaded %d, uploaded %d, requeued %d\n", line.Downloaded, line.Uploaded, line.Requeued)
	for _, f := range line.Failures {
		fmt.Fprintf(p.w, "refused %s[%s]: %s\n", f.Table, f.ID, f.Code)
	}
	return nil
}

func cell(v any) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case *time.Time:
		if value == nil {
			return "-"
		}
		return value.UTC().Format(time.RFC3339Nano)
	case time.Time:
		return value.UTC().Format(time.RFC3339Nano)
	case string:
		if value == "" {
			return "-"
		}
		return value
	default:
		return fmt.Sprint(value)
	}
}
