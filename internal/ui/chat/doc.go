// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// The view never blocks. Submitting a message records it through the
// conversation manager and starts the provider call on a delivery.Worker;
// the reply comes back as an update on the delivery queue, which the view
// drains on every tick.
//
// # Key Bindings
//
//   - Enter: send the message (Alt+Enter inserts a newline)
//   - Ctrl+R: start a new conversation
//   - Ctrl+T: show the transcript file path
//   - PgUp/PgDn: scroll the conversation
//   - Ctrl+C: quit
//
// Lines starting with "/" are commands: /reset, /transcript, /cost, /quit.
package chat
