// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider sends conversations to the remote completion endpoint.
//
// The Client sanitizes the conversation, sends it through a Transport,
// prices the call from token and pixel counts, and records the cost in the
// ledger. Two transports exist: AnthropicTransport talks to the Messages
// API over HTTP, and MockTransport echoes the last user message for
// offline use.
//
// # Cost model
//
// Input text tokens are counted with the cl100k_base tokenizer over every
// text element of the conversation, image tokens are width*height/750 per
// image, and output tokens are counted over the reply. Each count is
// priced per million tokens (see Pricing).
//
// # Errors
//
// Every failure from Complete is a *ProviderError. Use errors.Is with the
// sentinel errors (ErrAuthFailed, ErrRateLimited, ...) to classify it.
package provider
