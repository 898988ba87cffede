package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/y-scope/logroller/internal/config"
	"github.com/y-scope/logroller/internal/logging"
	"github.com/y-scope/logroller/internal/metrics"
	"github.com/y-scope/logroller/internal/rotate"
	"github.com/y-scope/logroller/internal/s3client"
	"github.com/y-scope/logroller/internal/upload"
)

// Time allowed for the metrics listener to finish in-flight scrapes.
const metricsShutdownTimeout = 5 * time.Second

var _ upload.Host = (*rotate.Writer)(nil)

var errInputClosed = errors.New("input closed for shutdown")

// gatedWriter forwards writes until it is closed. Once close returns no write is in flight, so
// everything accepted is already in the rolling file.
type gatedWriter struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, errInputClosed
	}
	return g.w.Write(p)
}

func (g *gatedWriter) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

// load reads the configuration and creates the logger writing to stderr.
func load(path string, stderr io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	logger, err := logging.New(cfg.Logging, stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	logger = logger.With().
		Str("instance_id", cfg.Upload.InstanceID).
		Str("bucket", cfg.Upload.Bucket).
		Logger()
	return cfg, logger, nil
}

// run copies stdin into the rolling writer until EOF or until ctx is cancelled, then ships the
// active file and drains pending uploads.
func run(
	ctx context.Context,
	c cmdRun,
	stdin io.Reader,
	stdout, stderr io.Writer,
	clientOpts []s3client.Option,
) error {
	cfg, logger, err := load(c.Config, stderr)
	if err != nil {
		return err
	}

	if cfg.Upload.ValidateBucket {
		if err := validateBucket(ctx, cfg.Upload, clientOpts); err != nil {
			return err
		}
	}

	uploads := metrics.NewUploads()
	stopMetrics := serveMetrics(cfg.Metrics.Listen, uploads, logger)
	defer stopMetrics()

	scheduler := upload.NewScheduler(
		cfg.Upload,
		s3client.NewResolver(cfg.Upload, clientOpts...),
		upload.WithLogger(logger),
		upload.WithMetrics(uploads),
	)

	writer, err := rotate.New(cfg.Rotation, scheduler.OnRotate, logger)
	if err != nil {
		_ = scheduler.Shutdown(context.Background(), nil)
		return err
	}

	out := &gatedWriter{w: writer}
	if c.Tee {
		out.w = io.MultiWriter(writer, stdout)
	}

	logger.Info().Str("path", writer.ActiveFileName()).Msg("Writing rolling log file")

	copyErr := make(chan error, 1)
	go func() {
		copyErr <- copyLines(out, stdin)
	}()

	var inputErr error
	select {
	case inputErr = <-copyErr:
	case <-ctx.Done():
		logger.Info().Msg("Received signal, shutting down")
	}

	// Lines read after this point are not written, so the final rollover ships everything the
	// writer accepted.
	out.close()

	// The drain has its own bound. ctx may already be cancelled here.
	shutdownErr := scheduler.Shutdown(context.Background(), writer)
	if errors.Is(shutdownErr, upload.ErrDrainTimeout) {
		// Exit proceeds. The warning was logged by the scheduler.
		shutdownErr = nil
	}

	return errors.Join(inputErr, shutdownErr, writer.Close())
}

// copyLines copies r to w one line at a time so a rollover never splits a line.
func copyLines(w io.Writer, r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if _, writeErr := w.Write(line); writeErr != nil {
				return fmt.Errorf("failed to write log line: %w", writeErr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
	}
}

// serveMetrics exposes uploads on listen. An empty address disables the listener.
//
// Returns:
//   - stop: Shuts the listener down
func serveMetrics(listen string, uploads *metrics.Uploads, logger zerolog.Logger) func() {
	if listen == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", uploads.Handler())
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("listen", listen).Msg("Metrics listener failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
