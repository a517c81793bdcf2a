package grpc

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/offsync/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) Ping(ctx context.Context, req *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("OK"), nil
}

// Download answers a JSON DownloadRequest. An empty payload asks for a
// clean download.
func (s *GRPCServer) Download(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var dr *models.DownloadRequest
	if len(req.GetValue()) > 0 {
		dr = &models.DownloadRequest{}
		if err := models.Decode(req.GetValue(), dr); err != nil {
			return nil, status.Error(codes.InvalidArgument, "malformed download request")
		}
	}

	resp, err := s.sync.ProcessDownloadRequest(ctx, dr)
	if err != nil {
		s.logger.Error(ctx, "download failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return encode(resp)
}

func (s *GRPCServer) Upload(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	ur := &models.UploadRequest{}
	if err := models.Decode(req.GetValue(), ur); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed upload request")
	}

	resp, err := s.sync.ProcessUploadRequest(ctx, ur)
	if err != nil {
		s.logger.Error(ctx, "upload failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return encode(resp)
}

func (s *GRPCServer) Snapshot(ctx context.Context, req *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if s.snapshots == nil {
		return nil, status.Error(codes.FailedPrecondition, "snapshots are not configured")
	}
	url, err := s.snapshots.Publish(ctx)
	if err != nil {
		s.logger.Error(ctx, "snapshot failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return wrapperspb.String(url), nil
}

func encode(v any) (*wrapperspb.BytesValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return wrapperspb.Bytes(b), nil
}
