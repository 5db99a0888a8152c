// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatdesk/internal/model"
)

// wordTokenizer counts whitespace-separated words.
var wordTokenizer = TokenizerFunc(func(s string) int { return len(strings.Fields(s)) })

type memRecorder struct {
	mu    sync.Mutex
	costs []float64
	err   error
}

func (r *memRecorder) LogCall(_ context.Context, cost float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.costs = append(r.costs, cost)
	return r.err
}

func imageConversation() []model.Message {
	return []model.Message{
		model.NewMessage(model.RoleUser,
			model.NewImage("/tmp/photo.jpg", 1500, 750, "image/jpeg", "QUJD"),
			model.NewText("describe this image please"),
		),
	}
}

// =============================================================================
// PRICING TESTS
// =============================================================================

func TestPricing_ImageTokens(t *testing.T) {
	p := DefaultPricing()
	assert.Equal(t, 1500.0, p.ImageTokens(1500, 750))
	assert.InDelta(t, 1.3333333, p.ImageTokens(10, 100), 1e-6)
	assert.Zero(t, p.ImageTokens(0, 100))
}

func TestPricing_Estimate(t *testing.T) {
	conv := imageConversation()
	conv = append(conv, model.NewMessage(model.RoleAssistant, model.NewText("a red barn")))

	cost := DefaultPricing().Estimate(wordTokenizer, conv, "one two three four")

	assert.Equal(t, 7, cost.InputTextTokens)
	assert.Equal(t, 1500.0, cost.InputImageTokens)
	assert.Equal(t, 4, cost.OutputTextTokens)

	want := 7.0/1e6*3 + 1500.0/1e6*3 + 4.0/1e6*15
	assert.InDelta(t, want, cost.TotalUSD, 1e-12)
}

func TestPricing_SanitizedConversationHasNoImageCost(t *testing.T) {
	cost := DefaultPricing().Estimate(wordTokenizer, model.Sanitize(imageConversation()), "")
	assert.Zero(t, cost.InputImageTokens)
}

func TestBPETokenizer(t *testing.T) {
	tok, err := NewBPETokenizer(DefaultEncoding)
	require.NoError(t, err)

	assert.Equal(t, 2, tok.Count("hello world"))
	assert.Zero(t, tok.Count(""))
	assert.Positive(t, tok.Count("<|endoftext|> is counted as text"))
}

// =============================================================================
// ANTHROPIC TRANSPORT TESTS
// =============================================================================

const okBody = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-3-5-sonnet-latest",
	"stop_reason": "end_turn",
	"content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " there"}],
	"usage": {"input_tokens": 12, "output_tokens": 3}
}`

func newTestTransport(url string) *AnthropicTransport {
	return NewAnthropicTransport("sk-ant-test", nil).
		WithBaseURL(url).
		WithRetryDelay(time.Millisecond)
}

func TestAnthropicTransport_SendsSanitizedRequest(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		data, _ := io.ReadAll(r.Body)
		assert.NotContains(t, string(data), "/tmp/photo.jpg")
		assert.NotContains(t, string(data), `"width"`)
		assert.NoError(t, json.Unmarshal(data, &captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	client := NewClient(newTestTransport(server.URL), wordTokenizer, nil, nil)
	got, err := client.Complete(context.Background(), imageConversation())
	require.NoError(t, err)

	assert.Equal(t, "Hello there", got.Text)
	assert.Equal(t, "end_turn", got.StopReason)
	assert.Equal(t, DefaultModel, captured["model"])
	assert.Equal(t, float64(DefaultMaxTokens), captured["max_tokens"])
	assert.Equal(t, DefaultTemperature, captured["temperature"])
	assert.Equal(t, DefaultSystemPrompt, captured["system"])

	messages := captured["messages"].([]any)
	first := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.NotContains(t, first, "id")
	assert.NotContains(t, first, "timestamp")
}

func TestAnthropicTransport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"auth", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, ErrAuthFailed},
		{"not found", http.StatusNotFound, `{"type":"error","error":{"type":"not_found_error","message":"model: nope"}}`, ErrModelNotFound},
		{"bad request", http.StatusBadRequest, `not json`, ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(newTestTransport(server.URL), wordTokenizer, nil, nil)
			_, err := client.Complete(context.Background(), imageConversation())

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.ErrorIs(t, err, tt.want)
			assert.NotEmpty(t, pe.Message)
			assert.Equal(t, int32(1), calls.Load(), "non-transient errors are not retried")
		})
	}
}

func TestAnthropicTransport_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(statusOverloaded)
			w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Write([]byte(okBody))
		}
	}))
	defer server.Close()

	client := NewClient(newTestTransport(server.URL), wordTokenizer, nil, nil)
	got, err := client.Complete(context.Background(), imageConversation())
	require.NoError(t, err)
	assert.Equal(t, "Hello there", got.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnthropicTransport_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	transport := newTestTransport(server.URL).WithMaxRetries(2)
	_, err := NewClient(transport, wordTokenizer, nil, nil).Complete(context.Background(), imageConversation())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicTransport_NotConfigured(t *testing.T) {
	client := NewClient(NewAnthropicTransport("  ", nil), wordTokenizer, nil, nil)
	_, err := client.Complete(context.Background(), imageConversation())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAnthropicTransport_Cancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(newTestTransport(server.URL), wordTokenizer, nil, nil).Complete(ctx, imageConversation())
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, errors.Is(err, context.Canceled))
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestClient_RecordsCost(t *testing.T) {
	rec := &memRecorder{}
	client := NewClient(MockTransport{}, wordTokenizer, rec, nil)

	conv := []model.Message{model.NewMessage(model.RoleUser, model.NewText("hello"))}
	got, err := client.Complete(context.Background(), conv)
	require.NoError(t, err)

	assert.Equal(t, "User said: hello", got.Text)
	require.Len(t, rec.costs, 1)
	want := 1.0/1e6*3 + 3.0/1e6*15
	assert.InDelta(t, want, rec.costs[0], 1e-12)
	assert.InDelta(t, want, got.Cost.TotalUSD, 1e-12)
}

func TestClient_RecorderFailureDoesNotFailCall(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	client := NewClient(MockTransport{}, wordTokenizer, rec, nil)

	_, err := client.Complete(context.Background(), []model.Message{model.NewMessage(model.RoleUser, model.NewText("hi"))})
	assert.NoError(t, err)
}

func TestClient_CustomSettingsAndPricing(t *testing.T) {
	var captured messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	client := NewClient(newTestTransport(server.URL), wordTokenizer, nil, nil).
		WithSettings(Settings{Model: "claude-x", MaxTokens: 50, Temperature: 0.1, SystemPrompt: "be brief"}).
		WithPricing(Pricing{InputPerMTok: 1, ImagePerMTok: 2, OutputPerMTok: 4, ImageTokenDivisor: 1500}).
		WithRequestsPerMinute(600)

	got, err := client.Complete(context.Background(), imageConversation())
	require.NoError(t, err)

	assert.Equal(t, "claude-x", captured.Model)
	assert.Equal(t, 50, captured.MaxTokens)
	assert.Equal(t, "be brief", captured.System)
	assert.Equal(t, 750.0, got.Cost.InputImageTokens)
	assert.InDelta(t, 4.0/1e6*1+750.0/1e6*2+2.0/1e6*4, got.Cost.TotalUSD, 1e-12)
}

func TestMockTransport(t *testing.T) {
	resp, err := MockTransport{}.Send(context.Background(), &Request{Messages: imageConversation()})
	require.NoError(t, err)
	assert.Equal(t, "User said: describe this image please", resp.Text)
}
