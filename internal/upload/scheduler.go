// Package implements asynchronous shipping of rolled log files. Uploads are keyed at submission
// time and run one at a time on a background worker so the logging path never waits on the
// network. Upload failures are logged and dropped.

package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/y-scope/logroller/internal/config"
	"github.com/y-scope/logroller/internal/metrics"
	"github.com/y-scope/logroller/internal/s3client"
)

// ClientSource provides the storage client. It is called by the worker before each upload so the
// client is only built once an upload is actually needed.
type ClientSource interface {
	Resolve(ctx context.Context) (s3client.Client, error)
}

// Host owns the active log file. It is consulted once on shutdown.
type Host interface {
	// Rollover closes the active file as a rolled file. The host reports the rolled file with
	// [Scheduler.OnRotate] before returning.
	Rollover() error
	// ActiveFileName returns the path of the file currently written to.
	ActiveFileName() string
}

// Task is one pending upload. The source file is opened when the task is created so a later
// rename by the rolling policy does not change what is uploaded.
type Task struct {
	SourcePath  string
	Key         string
	SubmittedAt time.Time

	file *os.File
	size int64
}

// Scheduler turns rotation events into uploads.
type Scheduler struct {
	cfg     config.Upload
	clients ClientSource
	exec    Executor
	logger  zerolog.Logger
	metrics *metrics.Uploads
	now     func() time.Time

	mu           sync.Mutex
	state        State
	shuttingDown bool
}

// Option customizes a [Scheduler].
type Option func(*Scheduler)

// WithExecutor replaces the default single [Worker].
func WithExecutor(exec Executor) Option {
	return func(s *Scheduler) {
		s.exec = exec
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics sets the collectors updated for every upload.
func WithMetrics(m *metrics.Uploads) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithClock sets the time source used for keys.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a scheduler. Unless [WithExecutor] is given, a [Worker] goroutine is
// started and runs until [Scheduler.Shutdown].
//
// Parameters:
//   - cfg: Upload configuration
//   - clients: Source of the storage client
//   - opts: Options
//
// Returns:
//   - scheduler: Scheduler in state [Idle]
func NewScheduler(cfg config.Upload, clients ClientSource, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:     cfg,
		clients: clients,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exec == nil {
		s.exec = NewWorker()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewUploads()
	}
	if s.cfg.DrainTimeout <= 0 {
		s.cfg.DrainTimeout = config.DefaultDrainTimeout
	}
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnRotate schedules the upload of a rolled file. Missing and empty files are skipped with a
// warning. OnRotate never blocks on the upload.
//
// Parameters:
//   - path: Path of the rolled file
func (s *Scheduler) OnRotate(path string) {
	s.enqueue(path)
}

// UploadActive schedules the upload of the file still being written, using the same keying as
// [Scheduler.OnRotate].
//
// Parameters:
//   - path: Path of the active file
func (s *Scheduler) UploadActive(path string) {
	s.enqueue(path)
}

// Shutdown ships the active file and drains the queue. With RollingOnExit the host rolls the
// active file, which reports it through [Scheduler.OnRotate]; otherwise the active file is uploaded
// as is. The drain is bounded by the configured drain timeout and by ctx. When the bound expires
// the running upload is cancelled and queued uploads are dropped. Only the first call has an
// effect.
//
// Parameters:
//   - ctx: Bounds the drain
//   - host: Owner of the active file, may be nil
//
// Returns:
//   - err: [ErrDrainTimeout] if uploads were abandoned
func (s *Scheduler) Shutdown(ctx context.Context, host Host) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	s.mu.Unlock()

	if host != nil {
		if s.cfg.RollingOnExit {
			if err := host.Rollover(); err != nil {
				s.logger.Error().Err(err).Msg("Failed to roll over active log file on exit")
			}
		} else {
			s.UploadActive(host.ActiveFileName())
		}
	}

	s.setState(Draining)
	defer s.setState(Stopped)

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
	defer cancel()

	if err := s.exec.Shutdown(drainCtx); err != nil {
		s.logger.Warn().
			Err(err).
			Dur("drain_timeout", s.cfg.DrainTimeout).
			Msg("Abandoning pending uploads")
		return err
	}

	s.logger.Debug().Msg("Upload queue drained")
	return nil
}

// setState moves to state. Transitions out of [Stopped] and back from [Draining] are ignored.
func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == Stopped:
	case s.state == Draining && state != Stopped:
	default:
		s.state = state
	}
}

func (s *Scheduler) enqueue(path string) {
	logger := s.logger.With().Str("path", path).Logger()

	task, err := s.newTask(path)
	if err != nil {
		logger.Warn().Err(err).Msg("Skipping upload")
		s.metrics.Results.WithLabelValues(metrics.ResultSkipped).Inc()
		return
	}

	s.metrics.QueueDepth.Inc()
	err = s.exec.Submit(func(ctx context.Context) {
		s.run(ctx, task)
	})
	if err != nil {
		s.metrics.QueueDepth.Dec()
		_ = task.file.Close()
		logger.Warn().Err(err).Str("key", task.Key).Msg("Upload not accepted")
		s.metrics.Results.WithLabelValues(metrics.ResultDropped).Inc()
		return
	}

	s.metrics.Submitted.Inc()
	logger.Debug().Str("key", task.Key).Msg("Upload scheduled")
}

// newTask opens path and computes its key.
//
// Parameters:
//   - path: File to upload
//
// Returns:
//   - task: Task holding the open file
//   - err: Error opening file, file is empty
func (s *Scheduler) newTask(path string) (*Task, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() == 0 {
		_ = file.Close()
		return nil, errors.New("log file is empty")
	}

	name := filepath.Base(path)
	if s.cfg.Compress {
		name += zstdSuffix
	}

	submittedAt := s.now()
	return &Task{
		SourcePath:  path,
		Key:         ObjectKey(s.cfg.FolderPrefix, name, submittedAt),
		SubmittedAt: submittedAt,
		file:        file,
		size:        info.Size(),
	}, nil
}

// run uploads one task on the worker. Errors end here.
func (s *Scheduler) run(ctx context.Context, task *Task) {
	defer s.metrics.QueueDepth.Dec()
	defer task.file.Close()

	logger := s.logger.With().
		Str("path", task.SourcePath).
		Str("bucket", s.cfg.Bucket).
		Str("key", task.Key).
		Logger()

	if ctx.Err() != nil {
		logger.Warn().Msg("Dropping upload abandoned by shutdown")
		s.metrics.Results.WithLabelValues(metrics.ResultDropped).Inc()
		return
	}

	s.setState(Uploading)
	defer s.setState(Idle)

	start := time.Now()
	size, err := s.upload(ctx, task)
	if err != nil {
		event := logger.Error().Err(err)
		if code := s3client.ErrorCode(err); code != "" {
			event = event.Str("code", code)
		}
		event.Msg("Failed to upload log file")
		s.metrics.Results.WithLabelValues(metrics.ResultFailure).Inc()
		return
	}

	elapsed := time.Since(start)
	s.metrics.Results.WithLabelValues(metrics.ResultSuccess).Inc()
	s.metrics.Duration.Observe(elapsed.Seconds())
	s.metrics.Bytes.Add(float64(size))
	logger.Info().Int64("bytes", size).Dur("elapsed", elapsed).Msg("Uploaded log file")
}

// upload sends task to the store, compressing first if configured.
//
// Parameters:
//   - ctx: Cancels the upload
//   - task: Task to upload
//
// Returns:
//   - size: Bytes sent
//   - err: Error resolving client, error compressing, error uploading
func (s *Scheduler) upload(ctx context.Context, task *Task) (int64, error) {
	client, err := s.clients.Resolve(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create storage client: %w", err)
	}

	body := task.file
	size := task.size
	if s.cfg.Compress {
		compressed, err := compressToTemp(task.file)
		if err != nil {
			return 0, err
		}
		defer func() {
			_ = compressed.Close()
			_ = os.Remove(compressed.Name())
		}()

		info, err := compressed.Stat()
		if err != nil {
			return 0, fmt.Errorf("failed to stat compressed file: %w", err)
		}
		body = compressed
		size = info.Size()
	}

	if err := client.Upload(ctx, s.cfg.Bucket, task.Key, body); err != nil {
		return 0, err
	}
	return size, nil
}
