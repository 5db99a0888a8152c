// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/chatdesk/internal/model"
)

// HTMLExporter writes a standalone HTML page.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates an HTML exporter. Raw HTML in message text is
// dropped, never passed through.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options: opts,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Export renders doc as HTML.
func (e *HTMLExporter) Export(doc *Document) ([]byte, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(doc.Title))
	fmt.Fprintf(&sb, "<style>\n%s</style>\n", e.css())
	sb.WriteString("</head>\n<body>\n<div class=\"container\">\n")

	e.renderHeader(&sb, doc)

	sb.WriteString("<div class=\"messages\">\n")
	for _, m := range doc.Messages {
		if err := e.renderMessage(&sb, m); err != nil {
			return nil, err
		}
	}
	sb.WriteString("</div>\n")

	fmt.Fprintf(&sb, "<footer>Exported %s</footer>\n", e.options.now().Format(time.RFC1123))
	sb.WriteString("</div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

func (e *HTMLExporter) renderHeader(sb *strings.Builder, doc *Document) {
	sb.WriteString("<header>\n")
	fmt.Fprintf(sb, "<h1>%s</h1>\n", html.EscapeString(doc.Title))
	sb.WriteString("<div class=\"meta\">")
	var parts []string
	if doc.Model != "" {
		parts = append(parts, "Model: "+html.EscapeString(doc.Model))
	}
	if !doc.CreatedAt.IsZero() {
		parts = append(parts, "Started: "+doc.CreatedAt.Format("2006-01-02 15:04"))
	}
	parts = append(parts, fmt.Sprintf("Messages: %d", len(doc.Messages)))
	sb.WriteString(strings.Join(parts, " &middot; "))
	sb.WriteString("</div>\n</header>\n")
}

func (e *HTMLExporter) renderMessage(sb *strings.Builder, m model.Message) error {
	fmt.Fprintf(sb, "<div class=\"message %s\">\n", m.Role)
	sb.WriteString("<div class=\"message-header\">")
	fmt.Fprintf(sb, "<span class=\"role\">%s</span>", html.EscapeString(m.Role.Label()))
	if e.options.IncludeTimestamps {
		fmt.Fprintf(sb, "<span class=\"time\">%s</span>", m.Time().Format("15:04:05"))
	}
	sb.WriteString("</div>\n")

	var body bytes.Buffer
	if err := e.md.Convert([]byte(textOf(m)), &body); err != nil {
		return fmt.Errorf("render message: %w", err)
	}
	sb.WriteString("<div class=\"content\">\n")
	sb.Write(body.Bytes())
	for _, name := range imageNames(m) {
		fmt.Fprintf(sb, "<div class=\"image\">[image] %s</div>\n", html.EscapeString(name))
	}
	sb.WriteString("</div>\n</div>\n")
	return nil
}

// FileExtension returns ".html".
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType returns the HTML MIME type.
func (e *HTMLExporter) MimeType() string { return "text/html; charset=utf-8" }

func (e *HTMLExporter) css() string {
	bg, surface, text, dim, accent, user := "#1a1b26", "#24283b", "#c0caf5", "#565f89", "#7aa2f7", "#9ece6a"
	if e.options.Theme == "light" {
		bg, surface, text, dim, accent, user = "#f5f5f5", "#ffffff", "#1f2335", "#6b7089", "#2e59c9", "#3d7a1f"
	}
	return fmt.Sprintf(`* { box-sizing: border-box; }
body { margin: 0; background: %[1]s; color: %[3]s; font-family: -apple-system, "Segoe UI", sans-serif; line-height: 1.6; }
.container { max-width: 860px; margin: 0 auto; padding: 2rem 1rem; }
header { border-bottom: 1px solid %[4]s; margin-bottom: 1.5rem; }
h1 { margin: 0 0 .25rem; color: %[5]s; }
.meta, .time, footer { color: %[4]s; font-size: .85rem; }
.message { background: %[2]s; border-radius: 8px; padding: .75rem 1rem; margin-bottom: 1rem; border-left: 3px solid %[5]s; }
.message.user { border-left-color: %[6]s; }
.message-header { display: flex; justify-content: space-between; margin-bottom: .25rem; }
.role { font-weight: 600; }
.user .role { color: %[6]s; }
.assistant .role { color: %[5]s; }
pre { background: %[1]s; padding: .75rem; border-radius: 6px; overflow-x: auto; }
code { font-family: "JetBrains Mono", Consolas, monospace; font-size: .9em; }
.image { color: %[4]s; font-style: italic; }
footer { margin-top: 2rem; text-align: center; }
`, bg, surface, text, dim, accent, user)
}
