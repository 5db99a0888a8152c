// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package delivery moves work from background goroutines onto the
// goroutine that owns the display.
//
// Background code never touches display state directly. It posts an
// Update to a Queue; the display goroutine calls Drain on every tick and
// runs whatever is pending, in the order it was posted.
//
// A Worker runs slow jobs (provider requests) off the display goroutine
// and posts each job's result back through the Queue.
//
//	q := delivery.NewQueue()
//	w := delivery.NewWorker(q, 2*time.Minute, logger)
//	w.Go("complete", func(ctx context.Context) delivery.Update {
//		reply, err := mgr.Complete(ctx)
//		return func() { view.Show(reply, err) }
//	})
//
//	// on the display goroutine, every tick:
//	q.Drain()
package delivery
