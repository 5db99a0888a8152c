// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package imageinput

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP decoder
)

const (
	// MaxLongEdge is the largest side, in pixels, sent to the remote API.
	MaxLongEdge = 1568

	// MaxEncodedBytes caps the size of the encoded JPEG.
	MaxEncodedBytes = 5 * 1024 * 1024

	// MediaType is the media type of every encoded image.
	MediaType = "image/jpeg"

	defaultQuality = 75
	maxShrinkSteps = 8
)

// DecodeError reports an image file that could not be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encoded is an image ready for transmission.
type Encoded struct {
	Base64       string
	Width        int
	Height       int
	EncodedBytes int
}

// Encoder re-encodes images within size limits.
type Encoder struct {
	MaxLongEdge int
	MaxBytes    int
	Quality     int
}

// NewEncoder returns an encoder with the default limits.
func NewEncoder() *Encoder {
	return &Encoder{
		MaxLongEdge: MaxLongEdge,
		MaxBytes:    MaxEncodedBytes,
		Quality:     defaultQuality,
	}
}

// Encode loads path and returns its JPEG encoding with final dimensions.
func (e *Encoder) Encode(path string) (*Encoded, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	img = flatten(img)
	img = capLongEdge(img, e.MaxLongEdge)

	data, err := e.encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	// Shrink by the square root of the overshoot until the file fits.
	for step := 0; len(data) > e.MaxBytes && step < maxShrinkSteps; step++ {
		ratio := math.Sqrt(float64(e.MaxBytes)/float64(len(data))) * 0.9
		b := img.Bounds()
		w := int(float64(b.Dx()) * ratio)
		h := int(float64(b.Dy()) * ratio)
		if w < 1 || h < 1 {
			break
		}
		img = imaging.Resize(img, w, h, imaging.Lanczos)
		if data, err = e.encodeJPEG(img); err != nil {
			return nil, err
		}
	}
	if len(data) > e.MaxBytes {
		return nil, fmt.Errorf("image %s still %d bytes after resizing", path, len(data))
	}

	b := img.Bounds()
	return &Encoded{
		Base64:       base64.StdEncoding.EncodeToString(data),
		Width:        b.Dx(),
		Height:       b.Dy(),
		EncodedBytes: len(data),
	}, nil
}

// Probe returns the dimensions of the image at path without decoding all
// of its pixels.
func Probe(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, &DecodeError{Path: path, Err: err}
	}
	return cfg.Width, cfg.Height, nil
}

func (e *Encoder) encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(e.Quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten composites img over a white background, dropping transparency.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func capLongEdge(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	if maxEdge <= 0 || max(b.Dx(), b.Dy()) <= maxEdge {
		return img
	}
	return imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
}
