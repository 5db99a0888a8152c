// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/chatdesk/internal/model"
)

// Configuration constants for the Messages API.
const (
	// DefaultBaseURL is the base URL of the Anthropic API.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is sent in the anthropic-version header.
	APIVersion = "2023-06-01"

	// DefaultTimeout is the default timeout for one request.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxRetries is the default number of attempts for transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type wireMessage struct {
	Role    model.Role             `json:"role"`
	Content []model.ContentElement `json:"content"`
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
}

type messagesResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type apiErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// ANTHROPIC TRANSPORT
// =============================================================================

// AnthropicTransport sends requests to the Anthropic Messages API.
type AnthropicTransport struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewAnthropicTransport creates a transport with the given API key. An
// empty key is accepted, but every Send then fails with ErrNotConfigured.
func NewAnthropicTransport(apiKey string, logger *slog.Logger) *AnthropicTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicTransport{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: retryBaseDelay,
		logger:     logger,
	}
}

// WithBaseURL sets a custom base URL for the API.
func (t *AnthropicTransport) WithBaseURL(url string) *AnthropicTransport {
	if url != "" {
		t.baseURL = strings.TrimSuffix(url, "/")
	}
	return t
}

// WithTimeout sets the per-request timeout.
func (t *AnthropicTransport) WithTimeout(timeout time.Duration) *AnthropicTransport {
	if timeout > 0 {
		t.httpClient.Timeout = timeout
	}
	return t
}

// WithMaxRetries sets the maximum number of attempts.
func (t *AnthropicTransport) WithMaxRetries(n int) *AnthropicTransport {
	if n > 0 {
		t.maxRetries = n
	}
	return t
}

// WithRetryDelay sets the base backoff delay.
func (t *AnthropicTransport) WithRetryDelay(d time.Duration) *AnthropicTransport {
	t.retryDelay = d
	return t
}

// IsConfigured returns true if an API key is set.
func (t *AnthropicTransport) IsConfigured() bool {
	return t.apiKey != ""
}

// Send implements Transport. Rate limits, overload responses, server
// errors and connection failures are retried with exponential backoff.
func (t *AnthropicTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if !t.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body := messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    make([]wireMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.calculateBackoff(attempt)
			t.logger.Warn("retrying API request", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := t.doRequest(ctx, payload)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs a single POST to the messages endpoint.
func (t *AnthropicTransport) doRequest(ctx context.Context, payload []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	t.setHeaders(req)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	t.logger.Debug("API response", "status", resp.StatusCode, "duration", time.Since(start))

	data, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, data)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var texts []string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	if len(texts) == 0 {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:         strings.Join(texts, ""),
		StopReason:   parsed.StopReason,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

func (t *AnthropicTransport) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", t.apiKey)
	req.Header.Set("anthropic-version", APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "chatdesk")
}

// calculateBackoff returns the delay to wait before the next attempt.
func (t *AnthropicTransport) calculateBackoff(attempt int) time.Duration {
	delay := t.retryDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts an HTTP error response to an *APIError.
func handleErrorResponse(status int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &APIError{Type: apiErr.Error.Type, Message: apiErr.Error.Message, Status: status}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Message: msg, Status: status}
}
