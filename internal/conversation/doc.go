// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation owns the live conversation and its two-state
// request cycle.
//
// # States
//
//   - Idle: the user may submit a message.
//   - AwaitingResponse: a user message and a "Thinking..." placeholder
//     have been appended and a completion is pending.
//
// Submit moves Idle to AwaitingResponse. Complete calls the provider
// without holding the lock, replaces the placeholder with the reply (or
// with "Error: <message>" when the call failed) and moves back to Idle.
// Reset is allowed in any state and discards a completion still in flight.
//
// Every change rewrites the transcript file in full.
//
// # Usage
//
//	mgr := conversation.NewManager(client, dispatcher, store, logger).
//		WithContext(loader)
//	if _, err := mgr.Submit(ctx, "hello"); err != nil {
//		return err
//	}
//	reply, err := mgr.Complete(ctx)
package conversation
