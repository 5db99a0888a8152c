// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the message and content shapes shared by the
// conversation manager, the provider client, and every presentation layer,
// plus the pure transforms applied to them.
//
// # Key Types
//
//   - Message: one turn with a role, ordered content, and a unix timestamp
//   - ContentElement: tagged text or image element
//   - Role: message role enumeration (user, assistant)
//
// # Key Functions
//
//   - ExtractText: flatten content to text, optionally shortened for previews
//   - Sanitize: deep copy with UI-only image metadata stripped for the wire
//   - BuildTranscript: markdown rendering used for export and display
//   - RenderTranscriptFile: plain-text block format written to disk
//
// # Usage
//
//	msg := model.NewMessage(model.RoleUser, model.NewText("Hello!"))
//	preview := model.ExtractText(msg.Content, true, model.DefaultShortenLen)
//	wire := model.Sanitize(history)
package model
