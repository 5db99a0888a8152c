// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jeranaias/chatdesk/internal/conversation"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/plugin/imageinput"
)

// imageInfo is the cached result of probing an image file.
type imageInfo struct {
	width, height int
	ok            bool
}

func (m *Model) renderConversation() string {
	if len(m.messages) == 0 {
		return m.theme.Timestamp.Render("\n  Start typing below. Paste an image path as the first line to attach it.\n")
	}

	var sb strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.renderMessage(msg))
	}
	return sb.String()
}

func (m *Model) renderMessage(msg model.Message) string {
	var sb strings.Builder

	label := m.theme.AssistantLabel.Render(msg.Role.Label())
	if msg.Role == model.RoleUser {
		label = m.theme.UserLabel.Render(msg.Role.Label())
	}
	sb.WriteString(label)
	sb.WriteString(" ")
	sb.WriteString(m.theme.Timestamp.Render(msg.Time().Format("15:04:05")))
	sb.WriteString("\n")

	switch {
	case msg.IsPlaceholder():
		sb.WriteString(m.theme.Thinking.Render(m.spinner.View() + " Thinking..."))
		sb.WriteString("\n")

	case msg.Role == model.RoleUser:
		var texts []model.ContentElement
		for _, el := range msg.Content {
			if el.IsImage() {
				sb.WriteString(m.renderImage(el))
				sb.WriteString("\n")
			} else {
				texts = append(texts, el)
			}
		}
		// User text is previewed; the context block appended to the first
		// message makes the full text long.
		if text := model.ExtractText(texts, true, m.previewLen); text != "" {
			sb.WriteString(m.theme.UserText.Render(text))
			sb.WriteString("\n")
		}

	default:
		text := msg.Text()
		if strings.HasPrefix(text, conversation.ErrorPrefix) {
			sb.WriteString(m.theme.ErrorText.Render(text))
			sb.WriteString("\n")
		} else {
			sb.WriteString(m.renderMarkdown(msg.ID, text))
		}
	}
	return sb.String()
}

// renderMarkdown renders assistant text with glamour, caching by message.
func (m *Model) renderMarkdown(id, text string) string {
	if out, ok := m.rendered[id]; ok {
		return out
	}
	if m.renderer == nil {
		return "  " + text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		m.logger.Warn("markdown render failed", "error", err)
		out = "  " + text + "\n"
	}
	m.rendered[id] = out
	return out
}

// renderImage shows an image tag with its dimensions. An image that can
// no longer be decoded is logged once and shown as unavailable.
func (m *Model) renderImage(el model.ContentElement) string {
	name := filepath.Base(el.Path)
	if el.Path == "" {
		name = "image"
	}

	info, seen := m.images[el.Path]
	if !seen {
		info = m.probeImage(el)
		m.images[el.Path] = info
	}

	if !info.ok {
		return m.theme.ImageMissing.Render("[image unavailable: " + name + "]")
	}
	return m.theme.ImageTag.Render(fmt.Sprintf("[image %dx%d] %s", info.width, info.height, name))
}

func (m *Model) probeImage(el model.ContentElement) imageInfo {
	if el.Path == "" {
		// Only the encoded data is known; trust the recorded size.
		return imageInfo{width: el.Width, height: el.Height, ok: el.Width > 0 && el.Height > 0}
	}
	w, h, err := imageinput.Probe(el.Path)
	if err != nil {
		m.logger.Warn("cannot display image", "path", el.Path, "error", err)
		return imageInfo{}
	}
	return imageInfo{width: w, height: h, ok: true}
}
