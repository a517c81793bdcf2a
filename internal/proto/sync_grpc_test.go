package proto

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type echoServer struct {
	UnimplementedSyncServiceServer
}

func (s *echoServer) Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("OK"), nil
}

func (s *echoServer) Download(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return wrapperspb.Bytes(append([]byte("down:"), in.GetValue()...)), nil
}

func dial(t *testing.T, srv SyncServiceServer, opts ...grpc.ServerOption) SyncServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(opts...)
	RegisterSyncServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSyncServiceClient(conn)
}

func TestSyncService_RoundTrip(t *testing.T) {
	srv := &echoServer{}
	var seen []string
	client := dial(t, srv, grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, h grpc.UnaryHandler) (any, error) {
		seen = append(seen, info.FullMethod)
		return h(ctx, req)
	}))
	ctx := context.Background()

	pong, err := client.Ping(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "OK", pong.GetValue())

	out, err := client.Download(ctx, wrapperspb.Bytes([]byte("{}")))
	require.NoError(t, err)
	assert.Equal(t, "down:{}", string(out.GetValue()))

	assert.Equal(t, []string{SyncService_Ping_FullMethodName, SyncService_Download_FullMethodName}, seen)
}

func TestSyncService_Unimplemented(t *testing.T) {
	client := dial(t, &echoServer{})
	ctx := context.Background()

	_, err := client.Upload(ctx, wrapperspb.Bytes(nil))
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	_, err = client.Snapshot(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
