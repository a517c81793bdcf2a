package timex

import (
	"fmt"
	"time"
)

// SortableLayout is a fixed-width UTC layout. Values formatted with it
// compare lexically in the same order as the instants they represent,
// which keeps SQLite text comparisons correct.
const SortableLayout = "2006-01-02T15:04:05.000000000Z"

// FormatSortable renders t in SortableLayout after converting it to UTC.
func FormatSortable(t time.Time) string {
	return t.UTC().Format(SortableLayout)
}

// ParseSortable accepts SortableLayout and any RFC 3339 value.
func ParseSortable(s string) (time.Time, error) {
	if t, err := time.Parse(SortableLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Ptr returns a pointer to a copy of t.
func Ptr(t time.Time) *time.Time {
	return &t
}
