// Package storage archives oversized raw HTML bodies to S3-compatible
// object storage, keyed by crawl log and product so the history writer
// can persist a pointer instead of the full body.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/obsrv/monitor/internal/config"
)

// Archiver stores raw crawl HTML bodies that exceed the inline
// persistence threshold. A disabled Archiver (no STORAGE_* config set)
// silently no-ops, matching the history writer's "best-effort archival"
// contract from spec.md §4.7.
type Archiver struct {
	client  *s3.Client
	bucket  string
	enabled bool
	logger  *slog.Logger
}

// New builds an Archiver from cfg. When cfg.StorageEnabled is false the
// returned Archiver is a no-op.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Archiver, error) {
	if !cfg.StorageEnabled {
		logger.Info("storage archival disabled - no bucket configured")
		return &Archiver{enabled: false, logger: logger}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.StorageRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	})

	logger.Info("storage archival initialized", "bucket", cfg.StorageBucket, "endpoint", cfg.StorageEndpoint)

	return &Archiver{
		client:  client,
		bucket:  cfg.StorageBucket,
		enabled: true,
		logger:  logger,
	}, nil
}

// Enabled reports whether archival is configured.
func (a *Archiver) Enabled() bool { return a.enabled }

// ArchiveHTML stores rawHTML under a key scoped to the crawl log and
// product, returning the object key on success. It is a no-op (empty
// key, nil error) when archival is disabled.
func (a *Archiver) ArchiveHTML(ctx context.Context, crawlLogID, productID string, rawHTML []byte) (string, error) {
	if !a.enabled {
		return "", nil
	}

	key := fmt.Sprintf("raw-html/%s/%s.html", crawlLogID, productID)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(rawHTML),
		ContentType: aws.String("text/html"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive raw HTML: %w", err)
	}

	a.logger.Debug("archived raw HTML", "key", key, "size_bytes", len(rawHTML))
	return key, nil
}
