// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imageinput turns a pasted image path into an image message.
//
// The first line of the input must be a path to an existing .png, .jpg,
// .jpeg, .gif or .webp file. The image is decoded, orientation-corrected
// from EXIF, flattened to RGB, capped at MaxLongEdge pixels on its long
// side and re-encoded as JPEG no larger than MaxEncodedBytes. Any further
// lines of input travel with it as text.
package imageinput

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/chatdesk/internal/model"
)

// Name is the configuration name of the plugin.
const Name = "image_input"

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// Plugin implements the image input plugin.
type Plugin struct {
	encoder *Encoder
	logger  *slog.Logger
}

// New creates the plugin with the default encoder limits.
func New(logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{encoder: NewEncoder(), logger: logger}
}

// WithEncoder replaces the encoder.
func (p *Plugin) WithEncoder(e *Encoder) *Plugin {
	p.encoder = e
	return p
}

// Name returns the configuration name.
func (p *Plugin) Name() string {
	return Name
}

// IsApplicable reports whether the first line of text names an existing
// image file.
func (p *Plugin) IsApplicable(text string) bool {
	path, _ := splitInput(text)
	return IsImagePath(path)
}

// Augment replaces the leading text element with the encoded image,
// followed by the remaining lines of that text when there are any.
func (p *Plugin) Augment(content []model.ContentElement) ([]model.ContentElement, error) {
	if len(content) == 0 || !content[0].IsText() {
		return nil, fmt.Errorf("expected leading text element")
	}

	path, rest := splitInput(content[0].Text)
	img, err := p.encoder.Encode(path)
	if err != nil {
		return nil, err
	}
	p.logger.Info("image attached", "path", path, "width", img.Width, "height", img.Height, "bytes", img.EncodedBytes)

	out := []model.ContentElement{
		model.NewImage(path, img.Width, img.Height, MediaType, img.Base64),
	}
	if rest != "" {
		out = append(out, model.NewText(rest))
	}
	return append(out, content[1:]...), nil
}

// IsImagePath reports whether path, trimmed, has an image extension and
// names an existing regular file.
func IsImagePath(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}

	lower := strings.ToLower(path)
	matched := false
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	info, err := os.Stat(expandHome(path))
	return err == nil && info.Mode().IsRegular()
}

// splitInput separates the first line (a candidate path) from the rest.
func splitInput(text string) (path, rest string) {
	text = strings.TrimSpace(text)
	first, remainder, _ := strings.Cut(text, "\n")
	return expandHome(strings.TrimSpace(first)), strings.TrimSpace(remainder)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
