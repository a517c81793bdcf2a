package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/models"
	pb "github.com/dmitrijs2005/offsync/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Discard(), &fakeSync{}, nil, "secret")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Discard(), &fakeSync{}, nil, "secret")
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

func TestServe_EndToEnd(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	f := &fakeSync{downloadResp: &models.DownloadResponse{Tables: map[string]*models.TableChanges{}}}
	srv := NewGRPCServer("", logging.Discard(), f, nil, "secret")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := pb.NewSyncServiceClient(conn)

	pong, err := client.Ping(context.Background(), &emptypb.Empty{})
	if err != nil || pong.GetValue() != "OK" {
		t.Fatalf("Ping: %v %q", err, pong.GetValue())
	}

	_, err = client.Download(context.Background(), &wrapperspb.BytesValue{})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated without token, got %v", status.Code(err))
	}

	authed := metadata.AppendToOutgoingContext(context.Background(),
		common.AccessTokenHeaderName, mustToken(t, "client-1", "secret", time.Hour))
	resp, err := client.Download(authed, &wrapperspb.BytesValue{})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(resp.GetValue()) != `{"tables":{}}` {
		t.Fatalf("unexpected body %s", resp.GetValue())
	}
	if !f.downloadCalled {
		t.Fatal("sync service not reached")
	}
}
