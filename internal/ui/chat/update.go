// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatdesk/internal/conversation"
	"github.com/jeranaias/chatdesk/internal/export"
)

// tickMsg drives the delivery queue.
type tickMsg time.Time

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tickMsg:
		m.queue.Drain()
		return m, m.tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.awaiting {
			m.updateViewport()
		}
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.Submit):
			return m, m.submit()

		case key.Matches(msg, m.keyMap.Reset):
			m.reset()
			return m, nil

		case key.Matches(msg, m.keyMap.Transcript):
			m.showTranscript()
			return m, nil

		case key.Matches(msg, m.keyMap.PageUp), key.Matches(msg, m.keyMap.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if !m.awaiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit sends the input, or runs it as a command when it starts with "/".
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runCommand(text)
	}

	if _, err := m.mgr.Submit(context.Background(), text); err != nil {
		if errors.Is(err, conversation.ErrResponsePending) {
			m.setStatus("wait for the current response", true)
		} else {
			m.setStatus(err.Error(), true)
		}
		return nil
	}

	m.input.Reset()
	m.setStatus("", false)
	m.refresh()
	m.startCompletion()
	return m.spinner.Tick
}

func (m *Model) runCommand(line string) tea.Cmd {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/reset", "/new", "/clear":
		m.reset()
	case "/transcript":
		m.showTranscript()
	case "/cost":
		m.requestCost()
		if m.costKnown {
			m.setStatus(fmt.Sprintf("spent $%.4f this month", m.monthlyCost), false)
		}
	case "/export":
		format := ""
		if len(fields) > 1 {
			format = fields[1]
		}
		m.export(format)
	case "/quit", "/exit":
		m.quitting = true
		return tea.Quit
	default:
		m.setStatus("unknown command "+fields[0], true)
	}
	return nil
}

func (m *Model) export(format string) {
	exp, err := export.ForFormat(format, nil)
	if err != nil {
		m.setStatus(err.Error(), true)
		return
	}
	name := m.mgr.TranscriptName()
	doc := export.NewDocument(name, m.modelID, m.mgr.Messages())
	path, err := export.ExportToFile(doc, exp, filepath.Dir(m.mgr.TranscriptPath()), name)
	if err != nil {
		m.setStatus("export failed: "+err.Error(), true)
		return
	}
	m.setStatus("exported to "+path, false)
}

func (m *Model) reset() {
	m.mgr.Reset()
	m.refresh()
	m.setStatus("started a new conversation", false)
}

func (m *Model) showTranscript() {
	if path := m.mgr.TranscriptPath(); path != "" {
		m.setStatus("transcript: "+path, false)
	}
}
