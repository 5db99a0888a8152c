// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"

	"github.com/jeranaias/chatdesk/internal/util"
)

// =============================================================================
// SENTINELS
// =============================================================================

const (
	// ThinkingPlaceholder is the text of the assistant message that marks
	// a request in flight.
	ThinkingPlaceholder = "[Thinking...]"

	// ShortenedSuffix is appended to previews that were truncated.
	ShortenedSuffix = "... [click for full message]"

	// ImagePlaceholder stands in for an image in extracted text.
	ImagePlaceholder = "![Image](image_placeholder.png)"

	// DefaultShortenLen is the preview length used when none is configured.
	DefaultShortenLen = 30

	// TranscriptDivider separates message blocks in transcript files.
	TranscriptDivider = "############################################################"
)

// =============================================================================
// TEXT EXTRACTION
// =============================================================================

// ExtractText flattens content to a string. Text elements are joined with
// newlines and images render as ImagePlaceholder.
//
// With shorten set, any result other than ThinkingPlaceholder has its
// newlines flattened to spaces and, when longer than shortenLen runes, is
// cut to shortenLen and suffixed with ShortenedSuffix.
func ExtractText(content []ContentElement, shorten bool, shortenLen int) string {
	parts := make([]string, 0, len(content))
	for _, el := range content {
		switch el.Type {
		case ContentText:
			parts = append(parts, el.Text)
		case ContentImage:
			parts = append(parts, ImagePlaceholder)
		}
	}
	res := strings.Join(parts, "\n")

	if !shorten || res == ThinkingPlaceholder {
		return res
	}
	return util.TruncateRunes(util.FlattenNewlines(res), shortenLen, ShortenedSuffix)
}

// =============================================================================
// SANITIZATION
// =============================================================================

// Sanitize returns a deep copy of conversation with the local path and
// dimensions removed from every image element. The input is not modified.
func Sanitize(conversation []Message) []Message {
	out := CloneAll(conversation)
	for i := range out {
		for j := range out[i].Content {
			el := &out[i].Content[j]
			if el.IsImage() {
				el.Path = ""
				el.Width = 0
				el.Height = 0
			}
		}
	}
	return out
}

// =============================================================================
// TRANSCRIPTS
// =============================================================================

// BuildTranscript renders the conversation as markdown, one
// "**<Speaker>:** text" paragraph per message.
func BuildTranscript(conversation []Message) string {
	var sb strings.Builder
	for _, m := range conversation {
		if !m.Role.Valid() {
			continue
		}
		sb.WriteString("**")
		sb.WriteString(m.Role.Label())
		sb.WriteString(":** ")
		sb.WriteString(ExtractText(m.Content, false, DefaultShortenLen))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// RenderTranscriptFile renders the plain-text transcript written to disk.
// Each message becomes "<Role> [<unix-ts>]:" followed by its text and a
// divider line.
func RenderTranscriptFile(conversation []Message) string {
	var sb strings.Builder
	for _, m := range conversation {
		sb.WriteString(m.Role.DisplayName())
		sb.WriteString(" [")
		sb.WriteString(strconv.FormatInt(m.Timestamp, 10))
		sb.WriteString("]:\n")
		sb.WriteString(ExtractText(m.Content, false, DefaultShortenLen))
		sb.WriteString("\n\n")
		sb.WriteString(TranscriptDivider)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
