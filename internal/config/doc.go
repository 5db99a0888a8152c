// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatdesk.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CHATDESK_*, plus ANTHROPIC_API_KEY)
//   - ~/.chatdesk/config.toml (or $CHATDESK_HOME/config.toml)
//   - Built-in defaults
//
// Relative paths in the file (ledger, transcripts, context) are resolved
// against the configuration directory with ResolvePath.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	store, err := storage.NewTranscriptStore(config.ResolvePath(cfg.Transcripts.Dir))
package config
