// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plugin reinterprets user input before it is recorded.
//
// A plugin classifies raw input text and, when it applies, rewrites the
// message content, for example turning an image path into an image element.
// The Dispatcher holds plugins in an explicit priority list and the first
// applicable plugin wins.
//
// # Usage
//
//	d := plugin.NewDispatcher(logger, imageinput.New(logger))
//	content := d.ClassifyAndAugment("~/Pictures/cat.png")
package plugin
