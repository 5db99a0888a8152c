// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"github.com/jeranaias/chatdesk/internal/model"
)

// Pricing holds the USD rates per million tokens.
type Pricing struct {
	InputPerMTok      float64
	ImagePerMTok      float64
	OutputPerMTok     float64
	ImageTokenDivisor float64
}

// DefaultPricing returns the published rates: $3 per million input and
// image tokens, $15 per million output tokens, and one image token per
// 750 pixels.
func DefaultPricing() Pricing {
	return Pricing{
		InputPerMTok:      3,
		ImagePerMTok:      3,
		OutputPerMTok:     15,
		ImageTokenDivisor: 750,
	}
}

// Cost is the priced breakdown of one call.
type Cost struct {
	InputTextTokens  int
	InputImageTokens float64
	OutputTextTokens int

	InputTextUSD  float64
	InputImageUSD float64
	OutputTextUSD float64
	TotalUSD      float64
}

// ImageTokens returns the token estimate for one image. Images without
// dimensions count as zero.
func (p Pricing) ImageTokens(width, height int) float64 {
	if width <= 0 || height <= 0 || p.ImageTokenDivisor <= 0 {
		return 0
	}
	return float64(width*height) / p.ImageTokenDivisor
}

// Estimate prices a call. conversation must still carry image dimensions,
// so pass the unsanitized history.
func (p Pricing) Estimate(tok Tokenizer, conversation []model.Message, reply string) Cost {
	var c Cost
	for _, m := range conversation {
		for _, el := range m.Content {
			switch el.Type {
			case model.ContentText:
				c.InputTextTokens += tok.Count(el.Text)
			case model.ContentImage:
				c.InputImageTokens += p.ImageTokens(el.Width, el.Height)
			}
		}
	}
	c.OutputTextTokens = tok.Count(reply)

	c.InputTextUSD = float64(c.InputTextTokens) / 1e6 * p.InputPerMTok
	c.InputImageUSD = c.InputImageTokens / 1e6 * p.ImagePerMTok
	c.OutputTextUSD = float64(c.OutputTextTokens) / 1e6 * p.OutputPerMTok
	c.TotalUSD = c.InputTextUSD + c.InputImageUSD + c.OutputTextUSD
	return c
}
