// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the current conversation over a local HTTP API.
//
// # Endpoints
//
//   - GET  /api/conversation - state, transcript name and messages
//   - POST /api/messages     - submit {"text": "..."}; the reply arrives later
//   - POST /api/reset        - start a new conversation
//   - GET  /api/cost         - month-to-date spend
//   - GET  /api/transcript   - markdown transcript
//   - GET  /ws               - conversation events as JSON frames
//
// Every change to the conversation is pushed to connected websocket clients
// as a "conversation" event carrying the full snapshot.
//
// # Usage
//
//	srv := server.New(server.Deps{Manager: mgr, Queue: q, Worker: w, Costs: ledger})
//	err := srv.Run(ctx, "127.0.0.1:8765")
package server
