// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversation transcripts.
//
// Each conversation is written to its own plain-text file named
// conversation_YYYYMMDD_HHMMSS.txt inside the transcript directory. The
// file is rewritten in full, atomically, after every change so that it
// always reflects the current conversation.
//
// # Usage
//
//	store, err := storage.NewTranscriptStore("conversations")
//	name := store.NextName(time.Now(), "")
//	err = store.Write(name, messages)
package storage
