package upload

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrStopped is returned when a job is submitted after shutdown began.
	ErrStopped = errors.New("upload executor is stopped")
	// ErrDrainTimeout is returned when queued uploads did not finish before the drain deadline.
	ErrDrainTimeout = errors.New("timed out draining upload queue")
)

// Job is one unit of work run by an [Executor]. A job receives a cancelled context when it was
// abandoned by a drain timeout and must return promptly.
type Job func(ctx context.Context)

// Executor runs submitted jobs.
type Executor interface {
	// Submit queues a job. It never blocks on the job itself.
	Submit(job Job) error
	// Shutdown stops accepting jobs and waits for queued ones until ctx is done.
	Shutdown(ctx context.Context) error
}

// Inline runs each job synchronously inside [Inline.Submit]. Used where ordering must be
// deterministic, such as tests and one-shot commands.
type Inline struct {
	mu      sync.Mutex
	stopped bool
}

// Submit runs job before returning.
func (e *Inline) Submit(job Job) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	job(context.Background())
	return nil
}

// Shutdown marks the executor stopped. Jobs have already finished.
func (e *Inline) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return nil
}
