package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/models"
	pb "github.com/dmitrijs2005/offsync/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.SyncServiceClient
	accessToken string
	timeout     time.Duration
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient connects lazily to endpointURL. Every call is bounded by
// timeout when it is positive.
func NewGRPCClient(endpointURL, accessToken string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken, timeout: timeout}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = pb.NewSyncServiceClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.client.Ping(ctx, &emptypb.Empty{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.GetValue() != "OK" {
		return ErrUnavailable
	}
	return nil
}

// Download sends the cursors in req. A nil req asks for a clean download
// and travels as an empty payload.
func (s *GRPCClient) Download(ctx context.Context, req *models.DownloadRequest) (*models.DownloadResponse, error) {
	in := &wrapperspb.BytesValue{}
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		in.Value = b
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	out, err := s.client.Download(ctx, in)
	if err != nil {
		return nil, s.mapError(err)
	}

	resp := &models.DownloadResponse{}
	if err := models.Decode(out.GetValue(), resp); err != nil {
		return nil, fmt.Errorf("malformed download response: %w", err)
	}
	return resp, nil
}

func (s *GRPCClient) Upload(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	out, err := s.client.Upload(ctx, wrapperspb.Bytes(b))
	if err != nil {
		return nil, s.mapError(err)
	}

	resp := &models.UploadResponse{}
	if err := models.Decode(out.GetValue(), resp); err != nil {
		return nil, fmt.Errorf("malformed upload response: %w", err)
	}
	return resp, nil
}

// Snapshot asks the server for a presigned URL of a recent clean download.
func (s *GRPCClient) Snapshot(ctx context.Context) (string, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	out, err := s.client.Snapshot(ctx, &emptypb.Empty{})
	if err != nil {
		return "", s.mapError(err)
	}
	return out.GetValue(), nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return common.ErrorUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
