// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across chatdesk packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe whole-file rewrite with fsync
//   - AppendLine: single-write append for line-oriented logs
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with a caller-supplied suffix
//   - TruncateWidth: display-width truncation for terminal cells
//   - FlattenNewlines: collapse line breaks to spaces for previews
//
// # Usage
//
//	// Rewrite a transcript without ever leaving a partial file behind
//	err := util.AtomicWriteFile(path, data, 0644)
//
//	// Shorten a message for a one-line preview
//	preview := util.TruncateRunes(util.FlattenNewlines(text), 30, "...")
package util
