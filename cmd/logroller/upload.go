package main

import (
	"context"
	"io"

	"github.com/y-scope/logroller/internal/metrics"
	"github.com/y-scope/logroller/internal/s3client"
	"github.com/y-scope/logroller/internal/upload"
)

// uploadFiles uploads each path in order and waits for the queue to drain.
func uploadFiles(ctx context.Context, c cmdUpload, stderr io.Writer, clientOpts []s3client.Option) error {
	cfg, logger, err := load(c.Config, stderr)
	if err != nil {
		return err
	}

	scheduler := upload.NewScheduler(
		cfg.Upload,
		s3client.NewResolver(cfg.Upload, clientOpts...),
		upload.WithLogger(logger),
		upload.WithMetrics(metrics.NewUploads()),
	)
	for _, path := range c.Paths {
		scheduler.UploadActive(path)
	}

	return scheduler.Shutdown(ctx, nil)
}
