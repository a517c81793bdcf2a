package transport

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/offsync/internal/models"
)

var ErrUnavailable = errors.New("server unavailable")

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Download(ctx context.Context, req *models.DownloadRequest) (*models.DownloadResponse, error)
	Upload(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error)
	Snapshot(ctx context.Context) (string, error)
}
