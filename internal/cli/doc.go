// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the chatdesk command line.
//
// # Commands
//
//   - chat (default): full-screen chat on a terminal, line mode otherwise
//   - serve: local HTTP and websocket API
//   - cost: month-to-date spend
//   - config: show, init, get, set and path
//   - transcripts: list and show saved conversations
//
// Global flags select the config file, the model and mock mode.
package cli
