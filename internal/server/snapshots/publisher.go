// Package snapshots publishes clean downloads to S3-compatible storage so
// new clients can bootstrap from a single object instead of a large RPC.
package snapshots

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/models"
	sc "github.com/dmitrijs2005/offsync/internal/server/config"
	"github.com/dmitrijs2005/offsync/internal/server/repositories/repomanager"
	snaprepo "github.com/dmitrijs2005/offsync/internal/server/repositories/snapshots"
	"github.com/dmitrijs2005/offsync/internal/timex"
	"golang.org/x/crypto/blake2b"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Source produces the clean download a snapshot captures.
type Source interface {
	ProcessDownloadRequest(ctx context.Context, req *models.DownloadRequest) (*models.DownloadResponse, error)
}

type Publisher struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	source      Source
	config      *sc.Config
	clock       timex.Clock
	logger      logging.Logger
}

func NewPublisher(db *sql.DB, m repomanager.RepositoryManager, source Source, cfg *sc.Config, l logging.Logger) *Publisher {
	return &Publisher{
		db:          db,
		repomanager: m,
		source:      source,
		config:      cfg,
		clock:       timex.RealClock{},
		logger:      l.With("module", "snapshots"),
	}
}

// ObjectKey names a snapshot by the BLAKE2b-256 digest of its body.
func ObjectKey(body []byte) string {
	sum := blake2b.Sum256(body)
	return "snapshots/" + hex.EncodeToString(sum[:]) + ".json"
}

func (p *Publisher) s3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(p.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			p.config.S3RootUser,
			p.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(p.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

func (p *Publisher) presign(ctx context.Context, client *s3.Client, key string) (string, error) {
	bucket := p.config.S3Bucket
	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(p.config.SnapshotURLExpiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Publish returns a presigned GET URL of a recent snapshot. The latest
// snapshot is reused while younger than SnapshotMaxAge; otherwise a
// new clean download is written to the bucket.
func (p *Publisher) Publish(ctx context.Context) (string, error) {
	client, err := p.s3Client(ctx)
	if err != nil {
		return "", err
	}

	repo := p.repomanager.Snapshots(p.db)
	latest, err := repo.Latest(ctx)
	if err != nil {
		return "", err
	}
	now := p.clock.Now()
	if latest != nil && now.Sub(latest.CreatedAt) < p.config.SnapshotMaxAge {
		p.logger.Debug(ctx, "snapshot reused", "key", latest.Key)
		return p.presign(ctx, client, latest.Key)
	}

	resp, err := p.source.ProcessDownloadRequest(ctx, nil)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}

	key := ObjectKey(body)
	bucket := p.config.S3Bucket
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	if err := repo.Save(ctx, &snaprepo.Snapshot{Key: key, CutoffAt: cutoffOf(resp, now), Rows: resp.Rows(), CreatedAt: now}); err != nil {
		return "", err
	}

	p.logger.Info(ctx, "snapshot published", "key", key, "rows", resp.Rows(), "bytes", len(body))
	return p.presign(ctx, client, key)
}

func cutoffOf(resp *models.DownloadResponse, fallback time.Time) time.Time {
	for _, t := range resp.Tables {
		if t != nil {
			return t.CutoffAt
		}
	}
	return fallback
}
