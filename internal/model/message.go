// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var titleCaser = cases.Title(language.English)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns the capitalized role name used in transcript files.
func (r Role) DisplayName() string {
	return titleCaser.String(string(r))
}

// Label returns the speaker label used in markdown transcripts.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return r.DisplayName()
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single turn in a conversation.
//
// Role is fixed at creation. Content is never empty except for the
// transient assistant placeholder that marks an in-flight request.
type Message struct {
	// ID identifies the message to presentation layers. It is never sent
	// to the remote endpoint.
	ID        string           `json:"id,omitempty"`
	Role      Role             `json:"role"`
	Content   []ContentElement `json:"content"`
	Timestamp int64            `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time and a fresh ID.
func NewMessage(role Role, content ...ContentElement) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Unix(),
	}
}

// NewPlaceholder creates the assistant message that stands in for a
// response still in flight.
func NewPlaceholder() Message {
	return NewMessage(RoleAssistant, NewText(ThinkingPlaceholder))
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = make([]ContentElement, len(m.Content))
		for i, el := range m.Content {
			out.Content[i] = el.Clone()
		}
	}
	return out
}

// Text returns the full extracted text of the message.
func (m Message) Text() string {
	return ExtractText(m.Content, false, DefaultShortenLen)
}

// Preview returns the shortened single-line text of the message.
func (m Message) Preview(maxLen int) string {
	return ExtractText(m.Content, true, maxLen)
}

// IsPlaceholder reports whether m is the in-flight response marker.
func (m Message) IsPlaceholder() bool {
	return m.Role == RoleAssistant && ExtractText(m.Content, false, DefaultShortenLen) == ThinkingPlaceholder
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// CloneAll deep-copies a conversation.
func CloneAll(conversation []Message) []Message {
	if conversation == nil {
		return nil
	}
	out := make([]Message, len(conversation))
	for i, m := range conversation {
		out[i] = m.Clone()
	}
	return out
}
