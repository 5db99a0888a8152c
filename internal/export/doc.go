// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders a conversation for sharing outside chatdesk.
//
// # Formats
//
//   - markdown: the "**Speaker:** text" transcript under a title heading
//   - html: a standalone page, message text rendered from markdown
//   - json: machine-readable, one object per message
//
// # Usage
//
//	doc := export.NewDocument("Trip planning", "claude-3-5-sonnet-latest", mgr.Messages())
//	exp, err := export.ForFormat("html", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(doc, exp, dir, "trip")
//
// The in-flight placeholder is never exported, and image elements are
// listed by file name only.
package export
