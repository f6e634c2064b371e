package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrWriterClosed is returned by Do after Close.
var ErrWriterClosed = errors.New("storage writer closed")

type writeJob struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// Writer runs persistence calls one at a time on a single goroutine. The
// store does not tolerate concurrent write transactions, so every writer of
// ladder data goes through one Writer.
type Writer struct {
	jobs   chan writeJob
	done   chan struct{}
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts a writer with a queue of queueSize pending jobs.
func NewWriter(queueSize int, logger *slog.Logger) *Writer {
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		jobs:   make(chan writeJob, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for j := range w.jobs {
		if err := j.ctx.Err(); err != nil {
			j.result <- err
			continue
		}
		j.result <- w.exec(j)
	}
}

func (w *Writer) exec(j writeJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("storage write panicked", "panic", r)
			err = errors.New("storage write panicked")
		}
	}()
	return j.fn(j.ctx)
}

// Do queues fn and waits for its result. fn runs with ctx; if ctx ends while
// fn is still queued, fn is skipped.
func (w *Writer) Do(ctx context.Context, fn func(context.Context) error) error {
	j := writeJob{ctx: ctx, fn: fn, result: make(chan error, 1)}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWriterClosed
	}
	select {
	case w.jobs <- j:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	return <-j.result
}

// Close stops accepting jobs, finishes the queued ones and waits for the
// worker to exit.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}
