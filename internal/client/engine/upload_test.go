package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	wire "github.com/dmitrijs2005/offsync/internal/models"
	"github.com/dmitrijs2005/offsync/internal/syncmeta"
	"github.com/dmitrijs2005/offsync/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(id string, at time.Time) *wire.UploadResult {
	return &wire.UploadResult{ID: id, SyncedAt: timex.Ptr(at)}
}

func TestRetrieveUploadRequest_InsertCarriesUploadableColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "a", "priority": 1, "note": "private"})
	require.NoError(t, err)

	_, req, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)

	rows := req.Tables["todos"]
	require.Len(t, rows, 1)
	assert.Equal(t, wire.OpInsert, rows[0].Op)
	assert.Equal(t, rec.ID, rows[0].ID)
	assert.Equal(t, map[string]any{"title": "a", "priority": int64(1), "is_deleted": false}, rows[0].Values)
	assert.NotContains(t, req.Tables, "tags")
}

func TestRetrieveUploadRequest_UpdateCarriesOnlyDirtyColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "a", "priority": 1})
	require.NoError(t, err)
	cutoff, _, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	_, err = f.engine.StoreUploadResponse(ctx, cutoff, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{"todos": {ok(rec.ID, t0)}},
	})
	require.NoError(t, err)

	_, err = f.engine.Update(ctx, "todos", rec.ID, map[string]any{"priority": 5})
	require.NoError(t, err)

	_, req, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	rows := req.Tables["todos"]
	require.Len(t, rows, 1)
	assert.Equal(t, wire.OpUpdate, rows[0].Op)
	assert.Equal(t, map[string]any{"priority": int64(5)}, rows[0].Values)
}

func TestRetrieveUploadRequest_EmptyWhenClean(t *testing.T) {
	f := newFixture(t)
	_, req, err := f.engine.RetrieveUploadRequest(context.Background())
	require.NoError(t, err)
	assert.True(t, req.Empty())
}

func TestUploadRoundTrip_ClearsDirtyState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "a"})
	require.NoError(t, err)
	_, err = f.engine.Update(ctx, "todos", rec.ID, map[string]any{"title": "b"})
	require.NoError(t, err)

	cutoff, _, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)

	synced := t0.Add(time.Hour)
	report, err := f.engine.StoreUploadResponse(ctx, cutoff, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{"todos": {ok(rec.ID, synced)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Empty(t, report.Failures)

	got := f.get(t, "todos", rec.ID)
	assert.Equal(t, syncmeta.DirtyNone, got.DirtyFlag)
	assert.Nil(t, got.Metadata.InsertTime)
	assert.False(t, got.Metadata.IsDirty("title"))
	require.NotNil(t, got.Metadata.LastSyncedAt("title"))
	assert.True(t, synced.Equal(*got.Metadata.LastSyncedAt("title")))
	assert.Nil(t, got.LastSyncedAt, "only downloads move the record's last_synced_at")
}

func TestUploadSnapshot_LaterWritesSurvive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "a"})
	require.NoError(t, err)

	cutoff, req, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", req.Tables["todos"][0].Values["title"])

	// written while the request is in flight
	_, err = f.engine.Update(ctx, "todos", rec.ID, map[string]any{"title": "b"})
	require.NoError(t, err)

	_, err = f.engine.StoreUploadResponse(ctx, cutoff, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{"todos": {ok(rec.ID, t0)}},
	})
	require.NoError(t, err)

	got := f.get(t, "todos", rec.ID)
	assert.Equal(t, syncmeta.DirtyUpdate, got.DirtyFlag, "pending insert becomes pending update")
	assert.Nil(t, got.Metadata.InsertTime)
	assert.True(t, got.Metadata.IsDirty("title"))
	assert.Equal(t, "b", got.Values["title"])

	_, req, err = f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	require.Len(t, req.Tables["todos"], 1)
	assert.Equal(t, wire.OpUpdate, req.Tables["todos"][0].Op)
	assert.Equal(t, map[string]any{"title": "b"}, req.Tables["todos"][0].Values)
}

func TestUploadSnapshot_InsertAfterCutoffIsNotSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cutoff, req, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	assert.True(t, req.Empty())

	rec, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "late"})
	require.NoError(t, err)

	// a stray acknowledgement must not clear a newer insert
	_, err = f.engine.StoreUploadResponse(ctx, cutoff, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{"todos": {ok(rec.ID, t0)}},
	})
	require.NoError(t, err)

	got := f.get(t, "todos", rec.ID)
	assert.Equal(t, syncmeta.DirtyInsert, got.DirtyFlag)
	assert.NotNil(t, got.Metadata.InsertTime)
}

func TestStoreUploadResponse_FailuresAreReportedOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "a"})
	require.NoError(t, err)
	b, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "b"})
	require.NoError(t, err)

	cutoff, _, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	before := f.get(t, "todos", a.ID)

	report, err := f.engine.StoreUploadResponse(ctx, cutoff, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{"todos": {
			{ID: a.ID, Error: common.CodeRecordAlreadyExists},
			ok(b.ID, t0),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, []UploadFailure{{Table: "todos", ID: a.ID, Code: common.CodeRecordAlreadyExists}}, report.Failures)

	assert.Equal(t, before, f.get(t, "todos", a.ID), "failed row is untouched")
	assert.Equal(t, syncmeta.DirtyNone, f.get(t, "todos", b.ID).DirtyFlag, "sibling row still applied")
}

func TestStoreUploadResponse_UnknownTableAndMissingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.engine.StoreUploadResponse(ctx, t0, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{
			"ghosts": {ok("x", t0)},
			"todos":  {ok("missing", t0)},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrorUnknownTable)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, 0, report.Applied)

	report, err = f.engine.StoreUploadResponse(ctx, t0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)
}

func TestStoreUploadResponse_EmptyResultIsReportedUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "a"})
	require.NoError(t, err)
	cutoff, _, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)

	report, err := f.engine.StoreUploadResponse(ctx, cutoff, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{"todos": {nil, ok(a.ID, t0)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, []UploadFailure{{Table: "todos", Code: common.CodeUnknown}}, report.Failures)
	assert.Equal(t, syncmeta.DirtyNone, f.get(t, "todos", a.ID).DirtyFlag)
}

// pausingClock hands out increasing readings and, once armed, blocks the
// caller that takes the next reading until released.
type pausingClock struct {
	inner  *timex.MonotonicClock
	mu     sync.Mutex
	armed  bool
	paused chan struct{}
	resume chan struct{}
}

func newPausingClock() *pausingClock {
	return &pausingClock{
		inner:  timex.NewMonotonicClock(timex.NewStubClock(t0)),
		paused: make(chan struct{}),
		resume: make(chan struct{}),
	}
}

func (c *pausingClock) arm() {
	c.mu.Lock()
	c.armed = true
	c.mu.Unlock()
}

func (c *pausingClock) Now() time.Time {
	now := c.inner.Now()

	c.mu.Lock()
	pause := c.armed
	c.armed = false
	c.mu.Unlock()

	if pause {
		close(c.paused)
		<-c.resume
	}
	return now
}

func TestRetrieveUploadRequest_WaitsForInFlightWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := newPausingClock()
	f.engine.clock = clock

	rec, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "v0"})
	require.NoError(t, err)
	cutoff, _, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	_, err = f.engine.StoreUploadResponse(ctx, cutoff, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{"todos": {ok(rec.ID, t0)}},
	})
	require.NoError(t, err)
	require.Equal(t, syncmeta.DirtyNone, f.get(t, "todos", rec.ID).DirtyFlag)

	// The writer stamps its marker, then stalls before committing.
	clock.arm()
	writeErr := make(chan error, 1)
	go func() {
		_, err := f.engine.Update(ctx, "todos", rec.ID, map[string]any{"title": "v1"})
		writeErr <- err
	}()
	<-clock.paused

	type upload struct {
		cutoff time.Time
		req    *wire.UploadRequest
		err    error
	}
	uploaded := make(chan upload, 1)
	go func() {
		c, req, err := f.engine.RetrieveUploadRequest(ctx)
		uploaded <- upload{c, req, err}
	}()

	select {
	case <-uploaded:
		t.Fatal("upload request assembled while a write was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(clock.resume)
	require.NoError(t, <-writeErr)
	up := <-uploaded
	require.NoError(t, up.err)

	rows := up.req.Tables["todos"]
	require.Len(t, rows, 1)
	assert.Equal(t, wire.OpUpdate, rows[0].Op)
	assert.Equal(t, map[string]any{"title": "v1"}, rows[0].Values)

	_, err = f.engine.StoreUploadResponse(ctx, up.cutoff, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{"todos": {ok(rec.ID, t0.Add(time.Second))}},
	})
	require.NoError(t, err)
	got := f.get(t, "todos", rec.ID)
	assert.Equal(t, "v1", got.Values["title"])
	assert.Equal(t, syncmeta.DirtyNone, got.DirtyFlag)
}

func TestRequeueAsUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "a"})
	require.NoError(t, err)
	require.NoError(t, f.engine.RequeueAsUpdate(ctx, "todos", rec.ID))

	got := f.get(t, "todos", rec.ID)
	assert.Equal(t, syncmeta.DirtyUpdate, got.DirtyFlag)
	assert.Nil(t, got.Metadata.InsertTime)

	_, req, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	row := req.Tables["todos"][0]
	assert.Equal(t, wire.OpUpdate, row.Op)
	assert.Equal(t, map[string]any{"title": "a", "priority": nil, "is_deleted": false}, row.Values)

	assert.ErrorIs(t, f.engine.RequeueAsUpdate(ctx, "todos", "ghost"), common.ErrorNotFound)
}

func TestRequeueAsInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.engine.Insert(ctx, "todos", map[string]any{"title": "a"})
	require.NoError(t, err)
	cutoff, _, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	_, err = f.engine.StoreUploadResponse(ctx, cutoff, &wire.UploadResponse{
		Tables: map[string][]*wire.UploadResult{"todos": {ok(rec.ID, t0)}},
	})
	require.NoError(t, err)
	_, err = f.engine.Update(ctx, "todos", rec.ID, map[string]any{"title": "b"})
	require.NoError(t, err)

	require.NoError(t, f.engine.RequeueAsInsert(ctx, "todos", rec.ID))

	_, req, err := f.engine.RetrieveUploadRequest(ctx)
	require.NoError(t, err)
	row := req.Tables["todos"][0]
	assert.Equal(t, wire.OpInsert, row.Op)
	assert.Equal(t, "b", row.Values["title"])

	assert.ErrorIs(t, f.engine.RequeueAsInsert(ctx, "nope", rec.ID), common.ErrorUnknownTable)
}
