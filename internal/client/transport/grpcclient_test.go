package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/models"
	pb "github.com/dmitrijs2005/offsync/internal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

/*************
 * Fake pb client
 *************/

type fakePB struct {
	lastDownload *wrapperspb.BytesValue
	lastUpload   *wrapperspb.BytesValue

	pingResp *wrapperspb.StringValue
	pingErr  error

	downloadResp *wrapperspb.BytesValue
	downloadErr  error

	uploadResp *wrapperspb.BytesValue
	uploadErr  error

	snapshotResp *wrapperspb.StringValue
	snapshotErr  error
}

func (f *fakePB) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return f.pingResp, f.pingErr
}
func (f *fakePB) Download(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	f.lastDownload = in
	return f.downloadResp, f.downloadErr
}
func (f *fakePB) Upload(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	f.lastUpload = in
	return f.uploadResp, f.uploadErr
}
func (f *fakePB) Snapshot(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return f.snapshotResp, f.snapshotErr
}

func newWithFake(f *fakePB) *GRPCClient {
	return &GRPCClient{client: f}
}

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

/*************
 * Calls
 *************/

func TestPing(t *testing.T) {
	require.NoError(t, newWithFake(&fakePB{pingResp: wrapperspb.String("OK")}).Ping(context.Background()))
	require.ErrorIs(t, newWithFake(&fakePB{pingResp: wrapperspb.String("MAINTENANCE")}).Ping(context.Background()), ErrUnavailable)
	require.ErrorIs(t, newWithFake(&fakePB{pingErr: status.Error(codes.Unavailable, "down")}).Ping(context.Background()), ErrUnavailable)
}

func TestDownload_NilRequestIsEmptyPayload(t *testing.T) {
	f := &fakePB{downloadResp: wrapperspb.Bytes([]byte(`{"tables":{"todos":{"cutoff_at":"2024-06-01T12:00:00Z","rows":[{"id":"r1","last_synced_at":"2024-06-01T12:00:00Z","values":{"priority":2}}]}}}`))}
	resp, err := newWithFake(f).Download(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, f.lastDownload.GetValue())
	require.Contains(t, resp.Tables, "todos")
	assert.True(t, resp.Tables["todos"].CutoffAt.Equal(t0))
	assert.Equal(t, json.Number("2"), resp.Tables["todos"].Rows[0].Values["priority"])
}

func TestDownload_Offsets(t *testing.T) {
	f := &fakePB{downloadResp: wrapperspb.Bytes([]byte(`{"tables":{}}`))}
	_, err := newWithFake(f).Download(context.Background(), &models.DownloadRequest{Offsets: map[string]time.Time{"todos": t0}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"offsets":{"todos":"2024-06-01T12:00:00Z"}}`, string(f.lastDownload.GetValue()))
}

func TestDownload_Errors(t *testing.T) {
	_, err := newWithFake(&fakePB{downloadErr: status.Error(codes.Unauthenticated, "missing token")}).Download(context.Background(), nil)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = newWithFake(&fakePB{downloadResp: wrapperspb.Bytes([]byte("nope"))}).Download(context.Background(), nil)
	require.ErrorContains(t, err, "malformed download response")
}

func TestUpload(t *testing.T) {
	f := &fakePB{uploadResp: wrapperspb.Bytes([]byte(`{"tables":{"todos":[{"id":"r1","synced_at":"2024-06-01T12:00:00Z"},{"id":"r2","error":"record_not_found"}]}}`))}
	req := &models.UploadRequest{Tables: map[string][]*models.UploadRow{
		"todos": {{Op: models.OpInsert, ID: "r1", Values: map[string]any{"title": "a"}}},
	}}

	resp, err := newWithFake(f).Upload(context.Background(), req)
	require.NoError(t, err)

	assert.JSONEq(t, `{"tables":{"todos":[{"op":"insert","id":"r1","values":{"title":"a"}}]}}`, string(f.lastUpload.GetValue()))
	require.Len(t, resp.Tables["todos"], 2)
	assert.True(t, resp.Tables["todos"][0].OK())
	assert.Equal(t, common.CodeRecordNotFound, resp.Tables["todos"][1].Error)

	_, err = newWithFake(&fakePB{uploadErr: status.Error(codes.Internal, "boom")}).Upload(context.Background(), req)
	require.ErrorContains(t, err, "rpc error")
}

func TestSnapshot(t *testing.T) {
	url, err := newWithFake(&fakePB{snapshotResp: wrapperspb.String("https://s3/x")}).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://s3/x", url)

	_, err = newWithFake(&fakePB{snapshotErr: status.Error(codes.DeadlineExceeded, "slow")}).Snapshot(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

/*************
 * mapError tests
 *************/

func TestMapError(t *testing.T) {
	c := &GRPCClient{}
	require.NoError(t, c.mapError(nil))
	require.Equal(t, common.ErrorUnauthorized, c.mapError(status.Error(codes.Unauthenticated, "x")))
	require.Equal(t, common.ErrorUnauthorized, c.mapError(status.Error(codes.PermissionDenied, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.Unavailable, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.DeadlineExceeded, "x")))

	other := errors.New("plain")
	require.ErrorIs(t, c.mapError(other), other)
}

/*************
 * Interceptor over a real connection
 *************/

type tokenEcho struct {
	pb.UnimplementedSyncServiceServer
}

func (tokenEcho) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(common.AccessTokenHeaderName); len(v) == 1 && v[0] == "tok" {
		return wrapperspb.String("OK"), nil
	}
	return nil, status.Error(codes.Unauthenticated, "missing token")
}

func TestNewGRPCClient_SendsAccessToken(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterSyncServiceServer(srv, tokenEcho{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) })

	c, err := NewGRPCClient("passthrough:///bufnet", "tok", time.Second, dialer)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(context.Background()))

	anon, err := NewGRPCClient("passthrough:///bufnet", "", time.Second, dialer)
	require.NoError(t, err)
	defer anon.Close()
	require.ErrorIs(t, anon.Ping(context.Background()), common.ErrorUnauthorized)
}

func TestWithAccessToken_ReplacesExisting(t *testing.T) {
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "old", "x-trace", "1")
	ctx = withAccessToken(ctx, "new")

	md, _ := metadata.FromOutgoingContext(ctx)
	assert.Equal(t, []string{"new"}, md.Get(common.AccessTokenHeaderName))
	assert.Equal(t, []string{"1"}, md.Get("x-trace"))
}
