// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"

	"github.com/jeranaias/chatdesk/internal/model"
)

// Request is one completion call.
type Request struct {
	Model       string
	MaxTokens   int
	Temperature float64
	System      string

	// Messages must already be sanitized.
	Messages []model.Message
}

// Response is the endpoint's answer.
type Response struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Transport delivers a Request to a completion endpoint.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// =============================================================================
// MOCK TRANSPORT
// =============================================================================

// MockTransport answers without any network access by echoing the first
// text of the last message.
type MockTransport struct{}

// Send implements Transport.
func (MockTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	last := ""
	if n := len(req.Messages); n > 0 {
		for _, el := range req.Messages[n-1].Content {
			if el.IsText() {
				last = el.Text
				break
			}
		}
	}
	return &Response{Text: "User said: " + last, StopReason: "end_turn"}, nil
}
