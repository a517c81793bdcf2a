package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/models"
	pb "github.com/dmitrijs2005/offsync/internal/proto"
	"google.golang.org/grpc"
)

type syncSvc interface {
	ProcessDownloadRequest(ctx context.Context, req *models.DownloadRequest) (*models.DownloadResponse, error)
	ProcessUploadRequest(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error)
}

type snapshotSvc interface {
	Publish(ctx context.Context) (string, error)
}

type GRPCServer struct {
	pb.UnimplementedSyncServiceServer
	address   string
	sync      syncSvc
	snapshots snapshotSvc
	logger    logging.Logger
	jwtSecret []byte
}

// NewGRPCServer wires the sync and snapshot services behind
// offsync.v1.SyncService. snapshots may be nil, in which case the Snapshot
// RPC answers FailedPrecondition. An empty secretKey turns authentication off.
func NewGRPCServer(a string, l logging.Logger, ss syncSvc, ps snapshotSvc, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		sync:      ss,
		snapshots: ps,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	pb.RegisterSyncServiceServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
