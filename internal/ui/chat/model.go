// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/chatdesk/internal/conversation"
	"github.com/jeranaias/chatdesk/internal/delivery"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/ui/styles"
)

// DefaultTick is the delivery queue drain interval.
const DefaultTick = 100 * time.Millisecond

// CostSource reports the spend for the current month.
type CostSource interface {
	MonthlyCost(ctx context.Context) (float64, error)
}

// Deps are the collaborators of the chat view.
type Deps struct {
	Manager    *conversation.Manager
	Queue      *delivery.Queue
	Worker     *delivery.Worker
	Costs      CostSource
	Theme      *styles.Theme
	Logger     *slog.Logger
	ModelName  string
	Tick       time.Duration
	PreviewLen int
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view. It is used by pointer:
// updates drained from the delivery queue modify it in place.
type Model struct {
	mgr     *conversation.Manager
	queue   *delivery.Queue
	worker  *delivery.Worker
	costs   CostSource
	theme   *styles.Theme
	logger  *slog.Logger
	keyMap  KeyMap
	modelID string

	tick       time.Duration
	previewLen int

	// Dimensions
	width  int
	height int
	ready  bool

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	// Snapshot of the conversation shown in the viewport
	messages []model.Message
	awaiting bool

	// Rendered markdown keyed by message ID; cleared on resize
	rendered map[string]string

	// Image probe results keyed by path
	images map[string]imageInfo

	// Status bar
	monthlyCost float64
	costKnown   bool
	statusMsg   string
	statusErr   bool

	quitting bool
}

// New creates the chat view.
func New(d Deps) *Model {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Theme == nil {
		d.Theme = styles.NewTheme("auto")
	}
	if d.Tick <= 0 {
		d.Tick = DefaultTick
	}
	if d.PreviewLen <= 0 {
		d.PreviewLen = model.DefaultShortenLen
	}

	input := textarea.New()
	input.Placeholder = "Type a message or an image path..."
	input.ShowLineNumbers = false
	input.Prompt = d.Theme.InputPrompt.Render("> ")
	input.CharLimit = 0
	input.SetHeight(3)
	input.KeyMap.InsertNewline.SetKeys("alt+enter")
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = d.Theme.Spinner

	m := &Model{
		mgr:        d.Manager,
		queue:      d.Queue,
		worker:     d.Worker,
		costs:      d.Costs,
		theme:      d.Theme,
		logger:     d.Logger,
		keyMap:     DefaultKeyMap(),
		modelID:    d.ModelName,
		tick:       d.Tick,
		previewLen: d.PreviewLen,
		viewport:   viewport.New(80, 20),
		input:      input,
		spinner:    sp,
		rendered:   make(map[string]string),
		images:     make(map[string]imageInfo),
	}

	// The manager notifies from whichever goroutine changed it; the
	// refresh itself always runs on the UI goroutine via the queue.
	m.mgr.OnChange(func() {
		if err := m.queue.Post(m.refresh); err != nil {
			m.logger.Debug("dropping refresh", "error", err)
		}
	})
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	m.requestCost()
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.tickCmd())
}

// NotifyCostChanged schedules a cost refresh. It is safe to call from any
// goroutine.
func (m *Model) NotifyCostChanged() {
	if err := m.queue.Post(m.requestCost); err != nil {
		m.logger.Debug("dropping cost refresh", "error", err)
	}
}

// =============================================================================
// STATE CHANGES (UI GOROUTINE ONLY)
// =============================================================================

// refresh copies the conversation out of the manager and redraws.
func (m *Model) refresh() {
	m.messages = m.mgr.Messages()
	m.awaiting = m.mgr.State() == conversation.AwaitingResponse
	if m.awaiting {
		m.input.Blur()
	} else {
		m.input.Focus()
	}
	m.updateViewport()
}

// requestCost reads the monthly total off the UI goroutine.
func (m *Model) requestCost() {
	if m.costs == nil {
		return
	}
	err := m.worker.Go("monthly-cost", func(ctx context.Context) delivery.Update {
		total, err := m.costs.MonthlyCost(ctx)
		return func() {
			if err != nil {
				m.logger.Warn("failed to read monthly cost", "error", err)
				return
			}
			m.monthlyCost = total
			m.costKnown = true
		}
	})
	if err != nil {
		m.logger.Debug("cost refresh not started", "error", err)
	}
}

// startCompletion runs the provider call in the background.
func (m *Model) startCompletion() {
	err := m.worker.Go("complete", func(ctx context.Context) delivery.Update {
		_, err := m.mgr.Complete(ctx)
		return func() {
			if err != nil && !errors.Is(err, conversation.ErrDiscarded) {
				m.setStatus("request failed: "+err.Error(), true)
			}
			m.requestCost()
		}
	})
	if err != nil {
		m.setStatus("could not start request: "+err.Error(), true)
	}
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.statusMsg = msg
	m.statusErr = isErr
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	inputHeight := m.input.Height() + 1 // top border
	vpHeight := height - headerHeight - inputHeight - statusHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.input.SetWidth(width)

	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", "error", err)
		renderer = nil
	}
	m.renderer = renderer
	m.rendered = make(map[string]string)
	m.ready = true
	m.updateViewport()
}

func (m *Model) updateViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation())
	if atBottom || m.awaiting {
		m.viewport.GotoBottom()
	}
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
