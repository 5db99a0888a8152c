// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package delivery

import (
	"errors"
	"sync"
)

// ErrClosed is returned when posting to a closed queue.
var ErrClosed = errors.New("delivery queue closed")

// Update is a unit of display work.
type Update func()

// =============================================================================
// DELIVERY QUEUE
// =============================================================================

// Queue is a FIFO of updates that is safe to post from any goroutine and
// is drained by exactly one consumer. Post never blocks.
type Queue struct {
	mu      sync.Mutex
	pending []Update
	closed  bool

	// ready receives a value whenever an update is posted
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Post appends an update. Nil updates are ignored.
func (q *Queue) Post(u Update) error {
	if u == nil {
		return nil
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, u)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Drain runs every pending update in FIFO order and returns how many ran.
// It does not wait: an empty queue returns 0 immediately. Updates posted
// while Drain is running are left for the next call.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, u := range batch {
		u()
	}
	return len(batch)
}

// Ready is signalled after a post. Consumers without a tick loop can
// select on it and then call Drain.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of pending updates.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects further posts. Updates already pending can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
