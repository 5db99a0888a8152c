// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jeranaias/chatdesk/internal/model"
)

// =============================================================================
// PLUGIN INTERFACE
// =============================================================================

// Plugin classifies input text and rewrites message content.
type Plugin interface {
	// Name identifies the plugin in configuration and logs.
	Name() string

	// IsApplicable reports whether the plugin handles text. It must not
	// fail for ordinary strings; filesystem checks are queries only.
	IsApplicable(text string) bool

	// Augment receives the baseline content and returns its replacement.
	Augment(content []model.ContentElement) ([]model.ContentElement, error)
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrUnknownPlugin is wrapped by LoadError for names with no factory.
var ErrUnknownPlugin = errors.New("unknown plugin")

// LoadError reports a plugin that could not be registered.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("plugin load failed: %v", e.Err)
	}
	return fmt.Sprintf("plugin %q load failed: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher runs input through the first applicable plugin. Registration
// order is the priority order. Plugins are registered at startup and are
// read-only afterwards.
type Dispatcher struct {
	mu      sync.RWMutex
	plugins []Plugin
	names   map[string]bool
	logger  *slog.Logger
}

// NewDispatcher registers plugins in the given order. A plugin that fails
// to register is skipped with a warning.
func NewDispatcher(logger *slog.Logger, plugins ...Plugin) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		names:  make(map[string]bool),
		logger: logger,
	}
	for _, p := range plugins {
		if err := d.Register(p); err != nil {
			d.logger.Warn("skipping plugin", "error", err)
		}
	}
	return d
}

// Register appends p to the priority list.
func (d *Dispatcher) Register(p Plugin) error {
	if p == nil {
		return &LoadError{Err: errors.New("nil plugin")}
	}

	name, err := safeName(p)
	if err != nil {
		return &LoadError{Err: err}
	}
	if name == "" {
		return &LoadError{Err: errors.New("plugin has no name")}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.names[name] {
		return &LoadError{Name: name, Err: errors.New("already registered")}
	}
	d.names[name] = true
	d.plugins = append(d.plugins, p)
	d.logger.Info("plugin loaded", "plugin", name)
	return nil
}

// Names returns the registered plugin names in priority order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.plugins))
	for i, p := range d.plugins {
		out[i] = p.Name()
	}
	return out
}

// ClassifyAndAugment builds [Text{input}] and hands it to the first plugin
// whose IsApplicable accepts input. When no plugin applies, or the chosen
// plugin fails, the baseline content is returned.
func (d *Dispatcher) ClassifyAndAugment(input string) []model.ContentElement {
	baseline := []model.ContentElement{model.NewText(input)}

	p := d.find(input)
	if p == nil {
		return baseline
	}

	d.logger.Debug("processing input with plugin", "plugin", p.Name())
	content, err := safeAugment(p, cloneContent(baseline))
	if err != nil {
		d.logger.Warn("plugin failed, sending input as text", "plugin", p.Name(), "error", err)
		return baseline
	}
	if len(content) == 0 {
		d.logger.Warn("plugin returned empty content, sending input as text", "plugin", p.Name())
		return baseline
	}
	return content
}

func (d *Dispatcher) find(input string) Plugin {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.plugins {
		if safeApplicable(p, input) {
			return p
		}
	}
	return nil
}

func safeName(p Plugin) (name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reading name: %v", r)
		}
	}()
	return p.Name(), nil
}

func safeApplicable(p Plugin, input string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return p.IsApplicable(input)
}

func safeAugment(p Plugin, content []model.ContentElement) (out []model.ContentElement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Augment(content)
}

func cloneContent(content []model.ContentElement) []model.ContentElement {
	out := make([]model.ContentElement, len(content))
	for i, el := range content {
		out[i] = el.Clone()
	}
	return out
}
