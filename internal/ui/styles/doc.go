// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the chatdesk TUI.
//
// Colors are Lip Gloss AdaptiveColor values, so the same palette works on
// light and dark terminals. NewTheme detects the background with termenv
// unless the configuration forces "dark" or "light".
//
//	theme := styles.NewTheme("auto")
//	fmt.Println(theme.UserLabel.Render("You"))
package styles
