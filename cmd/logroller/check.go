package main

import (
	"context"
	"fmt"
	"io"

	"github.com/y-scope/logroller/internal/config"
	"github.com/y-scope/logroller/internal/s3client"
)

// check validates the configuration and the bucket without uploading anything.
func check(ctx context.Context, c cmdCheck, stdout, stderr io.Writer, clientOpts []s3client.Option) error {
	cfg, logger, err := load(c.Config, stderr)
	if err != nil {
		return err
	}

	plan := s3client.Plan(cfg.Upload)
	logger.Debug().
		Stringer("credentials", plan.Base).
		Bool("assume_role", plan.AssumeRole).
		Msg("Resolved credential plan")

	if err := validateBucket(ctx, cfg.Upload, clientOpts); err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout, "bucket %s is reachable\n", cfg.Upload.Bucket)
	return err
}

// validateBucket builds a client and checks the bucket with it.
func validateBucket(ctx context.Context, cfg config.Upload, clientOpts []s3client.Option) error {
	api, err := s3client.Build(ctx, cfg, clientOpts...)
	if err != nil {
		return err
	}
	return s3client.ValidateBucket(ctx, api, cfg.Bucket)
}
