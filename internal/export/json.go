// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"
)

// JSONExporter writes a Document as indented JSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonDocument struct {
	Title      string        `json:"title"`
	Model      string        `json:"model,omitempty"`
	CreatedAt  *time.Time    `json:"created_at,omitempty"`
	ExportedAt time.Time     `json:"exported_at"`
	Messages   []jsonMessage `json:"messages"`
}

type jsonMessage struct {
	Role      string     `json:"role"`
	Text      string     `json:"text"`
	Images    []string   `json:"images,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Export renders doc as JSON. Image data is never included.
func (e *JSONExporter) Export(doc *Document) ([]byte, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}

	out := jsonDocument{
		Title:      doc.Title,
		Model:      doc.Model,
		ExportedAt: e.options.now().UTC(),
		Messages:   make([]jsonMessage, 0, len(doc.Messages)),
	}
	if !doc.CreatedAt.IsZero() {
		t := doc.CreatedAt.UTC()
		out.CreatedAt = &t
	}
	for _, m := range doc.Messages {
		jm := jsonMessage{
			Role:   m.Role.String(),
			Text:   textOf(m),
			Images: imageNames(m),
		}
		if e.options.IncludeTimestamps {
			t := m.Time().UTC()
			jm.Timestamp = &t
		}
		out.Messages = append(out.Messages, jm)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return append(data, '\n'), nil
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string { return ".json" }

// MimeType returns the JSON MIME type.
func (e *JSONExporter) MimeType() string { return "application/json" }
