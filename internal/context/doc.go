// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package context loads the local context documents attached to the first
// message of every conversation.
//
// A context directory holds plain .txt files, for example project notes or
// API documentation. Each file found (recursively, in lexical walk order) is
// wrapped in tags named after the file:
//
//	<notes.txt>
//	file content
//	</notes.txt>
//
// and the wrapped blocks are appended to the user's text.
//
// Import with an alias, since the name shadows the standard library:
//
//	ctxdocs "github.com/jeranaias/chatdesk/internal/context"
package context
