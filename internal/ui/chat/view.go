// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatdesk/internal/util"
)

const (
	headerHeight = 1
	statusHeight = 1
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.theme.InputContainer.Width(m.width).Render(m.input.View()),
		m.renderStatusBar(),
	)
}

func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("chatdesk")
	if m.modelID != "" {
		room := m.width - lipgloss.Width(title) - 4
		title += "  " + m.theme.Timestamp.Render(util.TruncateWidth(m.modelID, room))
	}
	return m.theme.Header.Width(m.width).MaxHeight(headerHeight).Render(title)
}

func (m *Model) renderStatusBar() string {
	var left string
	if m.awaiting {
		left = m.theme.StatusBusy.Render(m.spinner.View() + " waiting")
	} else {
		left = m.theme.StatusIdle.Render("ready")
	}

	if m.costKnown {
		left += "  " + m.theme.Cost.Render(fmt.Sprintf("$%.4f this month", m.monthlyCost))
	}

	if m.statusMsg != "" {
		style := m.theme.ShortcutDesc
		if m.statusErr {
			style = m.theme.ErrorText.PaddingLeft(0)
		}
		left += "  " + style.Render(util.TruncateWidth(util.FlattenNewlines(m.statusMsg), m.width/2))
	}

	var help []string
	for _, b := range m.keyMap.ShortHelp() {
		h := b.Help()
		help = append(help, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	right := strings.Join(help, "  ")

	inner := m.width - 2 // status bar padding
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	line := left
	if gap >= 2 {
		line = left + strings.Repeat(" ", gap) + right
	} else {
		line = lipgloss.NewStyle().MaxWidth(inner).Render(left)
	}
	return m.theme.StatusBar.Width(m.width).Render(line)
}
