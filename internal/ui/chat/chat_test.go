// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatdesk/internal/conversation"
	"github.com/jeranaias/chatdesk/internal/delivery"
	"github.com/jeranaias/chatdesk/internal/logging"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/plugin"
	"github.com/jeranaias/chatdesk/internal/provider"
	"github.com/jeranaias/chatdesk/internal/storage"
	"github.com/jeranaias/chatdesk/internal/ui/styles"
)

type echoCompleter struct {
	err error
}

func (e echoCompleter) Complete(ctx context.Context, conv []model.Message) (*provider.Completion, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &provider.Completion{Text: "**echo:** " + conv[len(conv)-1].Text()}, nil
}

type fixedCost float64

func (f fixedCost) MonthlyCost(ctx context.Context) (float64, error) { return float64(f), nil }

type harness struct {
	view   *Model
	mgr    *conversation.Manager
	worker *delivery.Worker
	queue  *delivery.Queue
}

func newHarness(t *testing.T, completer conversation.Completer) *harness {
	t.Helper()
	store, err := storage.NewTranscriptStore(t.TempDir())
	require.NoError(t, err)

	logger := logging.Discard()
	mgr := conversation.NewManager(completer, plugin.NewDispatcher(logger), store, logger)
	queue := delivery.NewQueue()
	worker := delivery.NewWorker(queue, time.Second, logger)
	t.Cleanup(worker.Stop)

	view := New(Deps{
		Manager:    mgr,
		Queue:      queue,
		Worker:     worker,
		Costs:      fixedCost(1.5),
		Theme:      styles.NewTheme("dark"),
		Logger:     logger,
		ModelName:  "test-model",
		PreviewLen: 30,
	})
	view.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return &harness{view: view, mgr: mgr, worker: worker, queue: queue}
}

// settle waits for background jobs and drains their updates as a tick would.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.worker.Active() > 0 || h.mgr.State() != conversation.Idle {
		if time.Now().After(deadline) {
			t.Fatal("background work did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.view.Update(tickMsg(time.Now()))
	// A drained update may start another job (cost refresh).
	for h.worker.Active() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	h.view.Update(tickMsg(time.Now()))
}

func (h *harness) send(text string) {
	h.view.input.SetValue(text)
	h.view.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestSubmit_ShowsReplyAfterDrain(t *testing.T) {
	h := newHarness(t, echoCompleter{})

	h.send("hello")
	assert.Empty(t, h.view.input.Value())

	h.settle(t)

	require.Len(t, h.view.messages, 2)
	assert.False(t, h.view.awaiting)
	out := h.view.View()
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "$1.5000 this month")
}

func TestSubmit_BlankInputIgnored(t *testing.T) {
	h := newHarness(t, echoCompleter{})
	h.send("   ")
	assert.Empty(t, h.mgr.Messages())
}

func TestSubmit_ProviderErrorShownInline(t *testing.T) {
	h := newHarness(t, echoCompleter{err: &provider.ProviderError{Message: "rate limited"}})

	h.send("hello")
	h.settle(t)

	assert.Contains(t, h.view.View(), "Error: rate limited")
}

func TestUserPreviewIsShortened(t *testing.T) {
	h := newHarness(t, echoCompleter{})

	long := strings.Repeat("abcdefghij", 10)
	h.send(long)
	h.settle(t)

	out := h.view.renderConversation()
	assert.Contains(t, out, model.ShortenedSuffix)
	assert.NotContains(t, out, long)
}

func TestResetCommand(t *testing.T) {
	h := newHarness(t, echoCompleter{})
	h.send("hello")
	h.settle(t)

	before := h.mgr.TranscriptName()
	h.send("/reset")

	assert.Empty(t, h.mgr.Messages())
	assert.NotEqual(t, before, h.mgr.TranscriptName())
	assert.Contains(t, h.view.statusMsg, "new conversation")
}

func TestExportCommand(t *testing.T) {
	h := newHarness(t, echoCompleter{})
	h.send("/export")
	assert.True(t, h.view.statusErr)

	h.send("hello")
	h.settle(t)
	h.send("/export json")

	assert.False(t, h.view.statusErr)
	want := strings.TrimSuffix(h.mgr.TranscriptPath(), ".txt") + ".json"
	assert.Contains(t, h.view.statusMsg, want)
	assert.FileExists(t, want)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, echoCompleter{})
	h.send("/bogus")
	assert.True(t, h.view.statusErr)
	assert.Empty(t, h.mgr.Messages())
}

func TestQuitKey(t *testing.T) {
	h := newHarness(t, echoCompleter{})
	_, cmd := h.view.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRenderImage_MissingFileShowsPlaceholder(t *testing.T) {
	h := newHarness(t, echoCompleter{})

	el := model.NewImage(filepath.Join(t.TempDir(), "gone.png"), 0, 0, "image/jpeg", "")
	out := h.view.renderImage(el)
	assert.Contains(t, out, "image unavailable: gone.png")
}

func TestRenderImage_ProbesDimensions(t *testing.T) {
	h := newHarness(t, echoCompleter{})

	path := filepath.Join(t.TempDir(), "pic.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 12, 7))))
	require.NoError(t, f.Close())

	out := h.view.renderImage(model.NewImage(path, 12, 7, "image/jpeg", ""))
	assert.Contains(t, out, "[image 12x7] pic.png")
}
