package upload

import (
	"context"
	"sync"
)

// Worker is an [Executor] running jobs one at a time, in submission order, on a single goroutine.
// The queue is unbounded so [Worker.Submit] never blocks the caller.
type Worker struct {
	mu      sync.Mutex
	queue   []Job
	stopped bool

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorker starts the worker goroutine. It exits after [Worker.Shutdown] once the queue is empty.
func NewWorker() *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go w.run()
	return w
}

// Submit appends job to the queue.
//
// Parameters:
//   - job: Job to run
//
// Returns:
//   - err: [ErrStopped] if shutdown began
func (w *Worker) Submit(job Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrStopped
	}
	w.queue = append(w.queue, job)
	w.signal()
	return nil
}

// Shutdown stops accepting jobs and waits for the queue to drain. If ctx is done first, the
// running job's context is cancelled and every job still queued is run with the cancelled context
// so it can release its resources. Shutdown does not wait for that to finish.
//
// Parameters:
//   - ctx: Bounds the drain
//
// Returns:
//   - err: [ErrDrainTimeout] if ctx was done before the queue drained
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.signal()
	w.mu.Unlock()

	select {
	case <-w.done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		return ErrDrainTimeout
	}
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Len returns the number of jobs waiting to run.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// signal wakes the worker goroutine. Caller must hold w.mu.
func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			stopped := w.stopped
			w.mu.Unlock()
			if stopped {
				return
			}
			<-w.wake
			continue
		}
		job := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		job(w.ctx)
	}
}
