// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/chatdesk/internal/model"
)

// MarkdownExporter writes the markdown transcript under a title heading.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export renders doc as markdown.
func (e *MarkdownExporter) Export(doc *Document) ([]byte, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", doc.Title)
	if doc.Model != "" {
		fmt.Fprintf(&sb, "- **Model**: %s\n", doc.Model)
	}
	if !doc.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "- **Started**: %s\n", doc.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "- **Messages**: %d\n\n---\n\n", len(doc.Messages))

	if !e.options.IncludeTimestamps {
		sb.WriteString(model.BuildTranscript(doc.Messages))
		return []byte(sb.String()), nil
	}

	for _, m := range doc.Messages {
		fmt.Fprintf(&sb, "_%s_\n\n", m.Time().Format("2006-01-02 15:04:05"))
		sb.WriteString(model.BuildTranscript([]model.Message{m}))
	}
	return []byte(sb.String()), nil
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// MimeType returns the markdown MIME type.
func (e *MarkdownExporter) MimeType() string { return "text/markdown; charset=utf-8" }
