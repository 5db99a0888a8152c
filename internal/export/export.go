// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/util"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("conversation has no messages")

// =============================================================================
// FORMAT
// =============================================================================

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// ParseFormat maps a user-supplied name to a Format. The empty string
// selects markdown.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want markdown, html or json)", name)
	}
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is the conversation snapshot handed to an Exporter.
type Document struct {
	Title     string
	Model     string
	CreatedAt time.Time
	Messages  []model.Message
}

// NewDocument builds a Document from a conversation. The in-flight
// placeholder is dropped and CreatedAt is taken from the first message.
func NewDocument(title, modelName string, conversation []model.Message) *Document {
	msgs := make([]model.Message, 0, len(conversation))
	for _, m := range conversation {
		if m.IsPlaceholder() || !m.Role.Valid() {
			continue
		}
		msgs = append(msgs, m.Clone())
	}

	doc := &Document{Title: title, Model: modelName, Messages: msgs}
	if len(msgs) > 0 {
		doc.CreatedAt = msgs[0].Time()
	}
	if doc.Title == "" {
		doc.Title = "Conversation"
	}
	return doc
}

// textOf joins the text elements of m, leaving images out.
func textOf(m model.Message) string {
	var parts []string
	for _, el := range m.Content {
		if el.IsText() {
			parts = append(parts, el.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// imageNames lists the base names of the images attached to m.
func imageNames(m model.Message) []string {
	var names []string
	for _, el := range m.Content {
		if el.IsImage() && el.Path != "" {
			names = append(names, filepath.Base(el.Path))
		}
	}
	return names
}

// =============================================================================
// EXPORTER
// =============================================================================

// Exporter renders a Document in one format.
type Exporter interface {
	Export(doc *Document) ([]byte, error)
	FileExtension() string
	MimeType() string
}

// Options configure the exporters.
type Options struct {
	// IncludeTimestamps adds a time to every message.
	IncludeTimestamps bool

	// Theme selects the HTML color scheme, "dark" or "light".
	Theme string

	// Now stamps the export time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{
		IncludeTimestamps: true,
		Theme:             "dark",
		Now:               time.Now,
	}
}

func (o *Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// ForFormat returns the exporter for a format name.
func ForFormat(name string, opts *Options) (Exporter, error) {
	f, err := ParseFormat(name)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	switch f {
	case FormatHTML:
		return NewHTMLExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	default:
		return NewMarkdownExporter(opts), nil
	}
}

// ExportToFile renders doc and writes it to dir/base<ext>, replacing any
// existing file. It returns the path written.
func ExportToFile(doc *Document, exp Exporter, dir, base string) (string, error) {
	data, err := exp.Export(doc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	base = strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	path := filepath.Join(dir, base+exp.FileExtension())
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func validate(doc *Document) error {
	if doc == nil || len(doc.Messages) == 0 {
		return ErrEmpty
	}
	return nil
}
