// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// ContentType tags a ContentElement.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// ImageSource carries the encoded image bytes sent to the remote endpoint.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentElement is one piece of message content, either text or an image.
//
// Path, Width and Height are local metadata for display and cost
// estimation. Sanitize clears them before anything is transmitted, and
// the omitempty tags keep them off the wire once cleared.
type ContentElement struct {
	Type ContentType `json:"type"`

	// Text element
	Text string `json:"text,omitempty"`

	// Image element
	Source *ImageSource `json:"source,omitempty"`
	Path   string       `json:"path,omitempty"`
	Width  int          `json:"width,omitempty"`
	Height int          `json:"height,omitempty"`
}

// NewText creates a text element.
func NewText(text string) ContentElement {
	return ContentElement{Type: ContentText, Text: text}
}

// NewImage creates an image element from base64 data and its local metadata.
func NewImage(path string, width, height int, mediaType, data string) ContentElement {
	return ContentElement{
		Type: ContentImage,
		Source: &ImageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      data,
		},
		Path:   path,
		Width:  width,
		Height: height,
	}
}

// IsText reports whether the element is text.
func (c ContentElement) IsText() bool { return c.Type == ContentText }

// IsImage reports whether the element is an image.
func (c ContentElement) IsImage() bool { return c.Type == ContentImage }

// Clone returns a deep copy of the element.
func (c ContentElement) Clone() ContentElement {
	out := c
	if c.Source != nil {
		src := *c.Source
		out.Source = &src
	}
	return out
}

// Pixels returns width times height for images and zero otherwise.
func (c ContentElement) Pixels() int {
	if !c.IsImage() {
		return 0
	}
	return c.Width * c.Height
}
