// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugin

import (
	"log/slog"

	"github.com/jeranaias/chatdesk/internal/plugin/imageinput"
)

// Factory constructs a plugin.
type Factory func(logger *slog.Logger) (Plugin, error)

// Builtins returns the factories for the plugins compiled into chatdesk,
// keyed by configuration name.
func Builtins() map[string]Factory {
	return map[string]Factory{
		imageinput.Name: func(logger *slog.Logger) (Plugin, error) {
			return imageinput.New(logger), nil
		},
	}
}

// DefaultOrder is the priority list used when configuration names none.
var DefaultOrder = []string{imageinput.Name}

// Load builds a dispatcher from an ordered list of plugin names. Unknown
// names and failing factories are skipped with a warning.
func Load(names []string, factories map[string]Factory, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := NewDispatcher(logger)
	for _, name := range names {
		factory, ok := factories[name]
		if !ok {
			logger.Warn("skipping plugin", "error", &LoadError{Name: name, Err: ErrUnknownPlugin})
			continue
		}
		p, err := factory(logger)
		if err != nil {
			logger.Warn("skipping plugin", "error", &LoadError{Name: name, Err: err})
			continue
		}
		if err := d.Register(p); err != nil {
			logger.Warn("skipping plugin", "error", err)
		}
	}
	return d
}
