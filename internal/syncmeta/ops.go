package syncmeta

import "time"

func (m *ColumnSyncMetadata) column(name string) *Metadata {
	if m.Columns == nil {
		m.Columns = make(map[string]*Metadata)
	}
	md, ok := m.Columns[name]
	if !ok {
		md = &Metadata{}
		m.Columns[name] = md
	}
	return md
}

// Get returns the column entry or nil.
func (m *ColumnSyncMetadata) Get(name string) *Metadata {
	return m.Columns[name]
}

// MarkDirty records a local write of the column at the given time,
// overwriting any earlier dirty marker.
func (m *ColumnSyncMetadata) MarkDirty(name string, at time.Time) {
	t := at.UTC()
	m.column(name).DirtyAt = &t
}

// ClearIfSynced clears the dirty marker when it was set at or before
// cutoff and records syncedAt as the column's last confirmed sync.
// A marker set after cutoff belongs to a write the upload did not carry
// and is left alone. It reports whether the column was cleared.
func (m *ColumnSyncMetadata) ClearIfSynced(name string, cutoff, syncedAt time.Time) bool {
	md := m.Columns[name]
	if md == nil || md.DirtyAt == nil || md.DirtyAt.After(cutoff) {
		return false
	}
	t := syncedAt.UTC()
	md.DirtyAt = nil
	md.ColumnLastSyncedAt = &t
	return true
}

// MarkSynced records that a downloaded value for the column was applied.
func (m *ColumnSyncMetadata) MarkSynced(name string, at time.Time) {
	t := at.UTC()
	m.column(name).ColumnLastSyncedAt = &t
}

// IsDirty reports whether the column has a pending local write.
func (m *ColumnSyncMetadata) IsDirty(name string) bool {
	md := m.Columns[name]
	return md != nil && md.DirtyAt != nil
}

// DirtyAt returns the column's dirty marker or nil.
func (m *ColumnSyncMetadata) DirtyAt(name string) *time.Time {
	if md := m.Columns[name]; md != nil {
		return md.DirtyAt
	}
	return nil
}

// LastSyncedAt returns the column's last confirmed sync or nil.
func (m *ColumnSyncMetadata) LastSyncedAt(name string) *time.Time {
	if md := m.Columns[name]; md != nil {
		return md.ColumnLastSyncedAt
	}
	return nil
}

// DirtyBy reports whether the column has a dirty marker at or before cutoff.
func (m *ColumnSyncMetadata) DirtyBy(name string, cutoff time.Time) bool {
	at := m.DirtyAt(name)
	return at != nil && !at.After(cutoff)
}

// AnyDirty reports whether any of the named columns is dirty.
func (m *ColumnSyncMetadata) AnyDirty(names []string) bool {
	for _, name := range names {
		if m.IsDirty(name) {
			return true
		}
	}
	return false
}

// SetInsertTime marks the record as a pending local insert.
func (m *ColumnSyncMetadata) SetInsertTime(at time.Time) {
	t := at.UTC()
	m.InsertTime = &t
}

// ClearInsertTimeIfSynced drops the insert marker when it was set at or
// before cutoff.
func (m *ColumnSyncMetadata) ClearInsertTimeIfSynced(cutoff time.Time) bool {
	if m.InsertTime == nil || m.InsertTime.After(cutoff) {
		return false
	}
	m.InsertTime = nil
	return true
}

// Pending reports whether anything is left to upload among the named columns.
func (m *ColumnSyncMetadata) Pending(names []string) bool {
	return m.InsertTime != nil || m.AnyDirty(names)
}
