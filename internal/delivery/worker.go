// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Go after Stop.
var ErrStopped = errors.New("worker stopped")

// Job runs off the display goroutine and returns the update that shows
// its result. A nil update posts nothing.
type Job func(ctx context.Context) Update

// =============================================================================
// WORKER
// =============================================================================

// Worker runs jobs on background goroutines and posts their results to a
// Queue.
type Worker struct {
	queue   *Queue
	timeout time.Duration
	logger  *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex // guards wg.Add against Stop
	wg      sync.WaitGroup
	stopped bool
	active  atomic.Int32
}

// NewWorker creates a worker posting to q. A zero timeout means jobs run
// until they finish or the worker stops.
func NewWorker(q *Queue, timeout time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		queue:   q,
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Go starts job on its own goroutine.
func (w *Worker) Go(name string, job Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrStopped
	}

	w.wg.Add(1)
	w.active.Add(1)
	go w.run(name, job)
	return nil
}

func (w *Worker) run(name string, job Job) {
	defer w.wg.Done()
	defer w.active.Add(-1)

	var ctx context.Context
	var cancel context.CancelFunc
	if w.timeout > 0 {
		ctx, cancel = context.WithTimeout(w.ctx, w.timeout)
	} else {
		ctx, cancel = context.WithCancel(w.ctx)
	}
	defer cancel()

	start := time.Now()
	update := w.safeRun(ctx, name, job)
	w.logger.Debug("background job finished", "job", name, "duration", time.Since(start))

	if err := w.queue.Post(update); err != nil {
		w.logger.Warn("dropping job result", "job", name, "error", err)
	}
}

func (w *Worker) safeRun(ctx context.Context, name string, job Job) (u Update) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("background job panicked", "job", name, "panic", r)
			u = nil
		}
	}()
	return job(ctx)
}

// Active returns the number of jobs still running.
func (w *Worker) Active() int {
	return int(w.active.Load())
}

// Stop cancels running jobs and waits for them to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}
