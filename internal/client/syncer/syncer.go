// Package syncer drives rounds of the replication protocol between the
// local engine and the server: one download, then one upload.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/config"
	"github.com/dmitrijs2005/offsync/internal/client/engine"
	"github.com/dmitrijs2005/offsync/internal/client/transport"
	"github.com/dmitrijs2005/offsync/internal/client/utils"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/models"
	"github.com/sethvargo/go-retry"
)

// Engine is the part of engine.Engine a sync round needs.
type Engine interface {
	RetrieveDownloadRequest(ctx context.Context) (*models.DownloadRequest, error)
	StoreDownloadResponse(ctx context.Context, resp *models.DownloadResponse) error
	RetrieveUploadRequest(ctx context.Context) (time.Time, *models.UploadRequest, error)
	StoreUploadResponse(ctx context.Context, cutoff time.Time, resp *models.UploadResponse) (*engine.UploadReport, error)
	RequeueAsUpdate(ctx context.Context, table, id string) error
	RequeueAsInsert(ctx context.Context, table, id string) error
}

// Result describes one sync round.
type Result struct {
	FromSnapshot bool
	Downloaded   int
	Uploaded     int
	Failures     []engine.UploadFailure
	Requeued     int
}

type Syncer struct {
	engine      Engine
	client      transport.Client
	policy      string
	useSnapshot bool
	interval    time.Duration
	retryBase   time.Duration
	httpClient  *http.Client
	logger      logging.Logger
}

type Option func(*Syncer)

func WithLogger(l logging.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Syncer) { s.httpClient = c }
}

// WithRetryBase sets the first backoff step used while the server is
// unavailable.
func WithRetryBase(d time.Duration) Option {
	return func(s *Syncer) { s.retryBase = d }
}

func New(e Engine, c transport.Client, cfg *config.Config, opts ...Option) *Syncer {
	s := &Syncer{
		engine:      e,
		client:      c,
		policy:      cfg.FailurePolicy,
		useSnapshot: cfg.UseSnapshot,
		interval:    cfg.SyncInterval,
		retryBase:   time.Second,
		httpClient:  &http.Client{Timeout: time.Minute},
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "syncer")
	return s
}

// SyncOnce runs a download round followed by an upload round.
func (s *Syncer) SyncOnce(ctx context.Context) (*Result, error) {
	res := &Result{}
	if err := s.download(ctx, res); err != nil {
		return res, err
	}
	if err := s.upload(ctx, res); err != nil {
		return res, err
	}
	s.logger.Info(ctx, "sync round finished",
		"downloaded", res.Downloaded, "uploaded", res.Uploaded,
		"failures", len(res.Failures), "requeued", res.Requeued, "snapshot", res.FromSnapshot)
	return res, nil
}

func (s *Syncer) download(ctx context.Context, res *Result) error {
	req, err := s.engine.RetrieveDownloadRequest(ctx)
	if err != nil {
		return err
	}

	if req == nil && s.useSnapshot {
		ok, err := s.bootstrap(ctx, res)
		if err != nil {
			return err
		}
		if ok {
			// catch up on what changed since the snapshot was taken
			if req, err = s.engine.RetrieveDownloadRequest(ctx); err != nil {
				return err
			}
		}
	}

	resp, err := s.client.Download(ctx, req)
	if err != nil {
		return err
	}
	if err := s.engine.StoreDownloadResponse(ctx, resp); err != nil {
		return err
	}
	res.Downloaded += resp.Rows()
	return nil
}

// bootstrap seeds an empty store from a server snapshot. It reports false
// when no snapshot could be used and a clean download should follow.
func (s *Syncer) bootstrap(ctx context.Context, res *Result) (bool, error) {
	url, err := s.client.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, transport.ErrUnavailable) || errors.Is(err, common.ErrorUnauthorized) {
			return false, err
		}
		s.logger.Warn(ctx, "snapshot unavailable, falling back to clean download", "error", err)
		return false, nil
	}

	body, err := utils.FetchPresignedURL(ctx, s.httpClient, url)
	if err != nil {
		s.logger.Warn(ctx, "snapshot fetch failed, falling back to clean download", "error", err)
		return false, nil
	}

	resp := &models.DownloadResponse{}
	if err := models.Decode(body, resp); err != nil {
		return false, fmt.Errorf("malformed snapshot: %w", err)
	}
	if err := s.engine.StoreDownloadResponse(ctx, resp); err != nil {
		return false, err
	}

	res.FromSnapshot = true
	res.Downloaded += resp.Rows()
	s.logger.Info(ctx, "bootstrapped from snapshot", "rows", resp.Rows())
	return true, nil
}

func (s *Syncer) upload(ctx context.Context, res *Result) error {
	cutoff, req, err := s.engine.RetrieveUploadRequest(ctx)
	if err != nil {
		return err
	}
	if req.Empty() {
		return nil
	}

	resp, err := s.client.Upload(ctx, req)
	if err != nil {
		return err
	}

	report, err := s.engine.StoreUploadResponse(ctx, cutoff, resp)
	if report != nil {
		res.Uploaded += report.Applied
		res.Failures = append(res.Failures, report.Failures...)
	}
	if err != nil {
		return err
	}

	if s.policy == config.PolicyRequeue {
		return s.requeue(ctx, res)
	}
	return nil
}

// requeue flips refused rows so the next round can succeed: an insert the
// server already has becomes an update, an update of a row the server
// lacks becomes an insert.
func (s *Syncer) requeue(ctx context.Context, res *Result) error {
	var errs []error
	for _, f := range res.Failures {
		var err error
		switch f.Code {
		case common.CodeRecordAlreadyExists:
			err = s.engine.RequeueAsUpdate(ctx, f.Table, f.ID)
		case common.CodeRecordNotFound:
			err = s.engine.RequeueAsInsert(ctx, f.Table, f.ID)
		default:
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res.Requeued++
		s.logger.Info(ctx, "row requeued", "table", f.Table, "id", f.ID, "code", f.Code)
	}
	return errors.Join(errs...)
}

// Run syncs every interval until ctx is done. While the server is
// unavailable a round is retried with exponential backoff capped at the
// interval. Other failures are logged and the loop waits for the next tick.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		roundCtx := logging.ContextWith(ctx, "round", round)
		if err := s.syncWithRetry(roundCtx); err != nil && ctx.Err() == nil {
			s.logger.Error(roundCtx, "sync round failed", "error", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Syncer) syncWithRetry(ctx context.Context) error {
	backoff := retry.WithCappedDuration(s.interval, retry.NewExponential(s.retryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := s.SyncOnce(ctx)
		if errors.Is(err, transport.ErrUnavailable) {
			s.logger.Warn(ctx, "server unavailable, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}
