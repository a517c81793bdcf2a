package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/logging"
	pb "github.com/dmitrijs2005/offsync/internal/proto"
	"github.com/dmitrijs2005/offsync/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer(secret string) *GRPCServer {
	return NewGRPCServer("", logging.Discard(), &fakeSync{}, nil, secret)
}

func TestInterceptor_Ping_AllowsWithoutToken(t *testing.T) {
	s := newTestServer("secret")

	info := &grpc.UnaryServerInfo{FullMethod: pb.SyncService_Ping_FullMethodName}
	handlerCalled := false
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled || resp != "ok" {
		t.Fatalf("handler not called or unexpected resp: %v", resp)
	}
}

func TestInterceptor_NoSecret_AuthDisabled(t *testing.T) {
	s := newTestServer("")

	info := &grpc.UnaryServerInfo{FullMethod: pb.SyncService_Upload_FullMethodName}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		if _, ok := ClientIDFromContext(ctx); ok {
			t.Fatal("no client id expected when auth is disabled")
		}
		return "ok", nil
	}

	if _, err := s.accessTokenInterceptor(context.Background(), nil, info, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer("secret")

	for _, m := range []string{pb.SyncService_Download_FullMethodName, pb.SyncService_Upload_FullMethodName, pb.SyncService_Snapshot_FullMethodName} {
		info := &grpc.UnaryServerInfo{FullMethod: m}
		h := func(ctx context.Context, req interface{}) (interface{}, error) {
			t.Fatal("handler should not be called when token missing")
			return nil, nil
		}

		_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("%s: expected Unauthenticated, got %v", m, status.Code(err))
		}
		if status.Convert(err).Message() != "missing token" {
			t.Fatalf("%s: expected 'missing token', got %q", m, status.Convert(err).Message())
		}
	}
}

func TestInterceptor_InvalidToken(t *testing.T) {
	s := newTestServer("secret")

	cases := map[string]string{
		"garbage":      "not-a-valid-jwt",
		"wrong secret": mustToken(t, "client-1", "other", time.Hour),
		"expired":      mustToken(t, "client-1", "secret", -time.Minute),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			md := metadata.New(map[string]string{common.AccessTokenHeaderName: token})
			ctx := metadata.NewIncomingContext(context.Background(), md)
			info := &grpc.UnaryServerInfo{FullMethod: pb.SyncService_Download_FullMethodName}

			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				t.Fatal("handler should not be called for invalid token")
				return nil, nil
			}

			_, err := s.accessTokenInterceptor(ctx, nil, info, h)
			if status.Code(err) != codes.Unauthenticated {
				t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
			}
		})
	}
}

func TestInterceptor_ValidToken_SetsClientID(t *testing.T) {
	s := newTestServer("super-secret")

	md := metadata.New(map[string]string{
		common.AccessTokenHeaderName: mustToken(t, "client-123", "super-secret", time.Hour),
	})
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: pb.SyncService_Upload_FullMethodName}

	var got string
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		got, _ = ClientIDFromContext(ctx)
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(ctx, nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if got != "client-123" {
		t.Fatalf("client id not propagated in context: got %q", got)
	}
}

func mustToken(t *testing.T, clientID, secret string, validity time.Duration) string {
	t.Helper()
	token, err := auth.GenerateToken(clientID, []byte(secret), validity)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	return token
}
