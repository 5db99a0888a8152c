// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/chatdesk/internal/model"
)

// Defaults for a completion request.
const (
	DefaultModel        = "claude-3-5-sonnet-latest"
	DefaultMaxTokens    = 1000
	DefaultTemperature  = 0.8
	DefaultSystemPrompt = "You are a helpful assistant"
)

// Recorder receives the cost of every successful call.
type Recorder interface {
	LogCall(ctx context.Context, cost float64) error
}

// Settings are the per-request parameters sent with every call.
type Settings struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

// DefaultSettings returns the stock request parameters.
func DefaultSettings() Settings {
	return Settings{
		Model:        DefaultModel,
		MaxTokens:    DefaultMaxTokens,
		Temperature:  DefaultTemperature,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Completion is the result of a successful call.
type Completion struct {
	Text       string
	StopReason string
	Cost       Cost
	Duration   time.Duration
}

// =============================================================================
// CLIENT
// =============================================================================

// Client completes conversations. It is safe for concurrent use.
type Client struct {
	transport Transport
	tokenizer Tokenizer
	pricing   Pricing
	settings  Settings
	recorder  Recorder
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient creates a client over transport. tokenizer is required for
// pricing; recorder may be nil to skip cost logging.
func NewClient(transport Transport, tokenizer Tokenizer, recorder Recorder, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: transport,
		tokenizer: tokenizer,
		pricing:   DefaultPricing(),
		settings:  DefaultSettings(),
		recorder:  recorder,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    logger,
	}
}

// WithPricing overrides the cost rates.
func (c *Client) WithPricing(p Pricing) *Client {
	c.pricing = p
	return c
}

// WithSettings overrides the request parameters.
func (c *Client) WithSettings(s Settings) *Client {
	c.settings = s
	return c
}

// WithRequestsPerMinute limits outgoing calls. Zero or less disables the
// limit.
func (c *Client) WithRequestsPerMinute(rpm int) *Client {
	if rpm <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	return c
}

// Settings returns the request parameters.
func (c *Client) Settings() Settings {
	return c.settings
}

// Complete sends conversation and returns the reply.
//
// The conversation is sanitized before transmission; cost is estimated
// from the original, which still carries image dimensions. On success the
// cost is handed to the recorder. A recorder failure is logged and does
// not fail the call. Every error returned is a *ProviderError.
func (c *Client) Complete(ctx context.Context, conversation []model.Message) (*Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, wrapError(fmt.Errorf("rate limiter: %w", err))
	}

	req := &Request{
		Model:       c.settings.Model,
		MaxTokens:   c.settings.MaxTokens,
		Temperature: c.settings.Temperature,
		System:      c.settings.SystemPrompt,
		Messages:    model.Sanitize(conversation),
	}

	start := time.Now()
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		c.logger.Warn("completion failed", "model", req.Model, "error", err)
		return nil, wrapError(err)
	}

	cost := c.pricing.Estimate(c.tokenizer, conversation, resp.Text)
	completion := &Completion{
		Text:       resp.Text,
		StopReason: resp.StopReason,
		Cost:       cost,
		Duration:   time.Since(start),
	}

	c.logger.Info("completion received",
		"model", req.Model,
		"duration", completion.Duration,
		"input_text_tokens", cost.InputTextTokens,
		"input_image_tokens", cost.InputImageTokens,
		"output_text_tokens", cost.OutputTextTokens,
		"cost_usd", cost.TotalUSD,
	)

	if c.recorder != nil {
		if err := c.recorder.LogCall(ctx, cost.TotalUSD); err != nil {
			c.logger.Error("failed to record call cost", "error", err)
		}
	}

	return completion, nil
}
