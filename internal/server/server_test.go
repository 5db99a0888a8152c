// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatdesk/internal/conversation"
	"github.com/jeranaias/chatdesk/internal/delivery"
	"github.com/jeranaias/chatdesk/internal/logging"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/plugin"
	"github.com/jeranaias/chatdesk/internal/provider"
	"github.com/jeranaias/chatdesk/internal/storage"
)

// gatedCompleter echoes the last message once gate is closed.
type gatedCompleter struct {
	gate chan struct{}
}

func (g *gatedCompleter) Complete(ctx context.Context, conv []model.Message) (*provider.Completion, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &provider.Completion{Text: "echo: " + conv[len(conv)-1].Text()}, nil
}

type fixedCost float64

func (f fixedCost) MonthlyCost(ctx context.Context) (float64, error) { return float64(f), nil }

type fixture struct {
	srv *Server
	mgr *conversation.Manager
	ts  *httptest.Server
}

func newFixture(t *testing.T, completer conversation.Completer) *fixture {
	t.Helper()
	return newLoggedFixture(t, completer, logging.Discard())
}

func newLoggedFixture(t *testing.T, completer conversation.Completer, logger *slog.Logger) *fixture {
	t.Helper()
	store, err := storage.NewTranscriptStore(t.TempDir())
	require.NoError(t, err)

	mgr := conversation.NewManager(completer, plugin.NewDispatcher(logger), store, logger)
	queue := delivery.NewQueue()
	worker := delivery.NewWorker(queue, 5*time.Second, logger)

	srv := New(Deps{Manager: mgr, Queue: queue, Worker: worker, Costs: fixedCost(2.5), Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	srv.StartBackground(ctx)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		worker.Stop()
		cancel()
	})
	return &fixture{srv: srv, mgr: mgr, ts: ts}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) conversation(t *testing.T) conversationView {
	t.Helper()
	resp, err := http.Get(f.ts.URL + "/api/conversation")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view conversationView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.mgr.State() == conversation.Idle
	}, 2*time.Second, 10*time.Millisecond)
}

// lockedBuffer is a bytes.Buffer safe for the server's goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRequestLogger_TagsHandlerLogs(t *testing.T) {
	var out lockedBuffer
	handler, err := logging.NewHandler(&out, "text", slog.LevelDebug)
	require.NoError(t, err)
	f := newLoggedFixture(t, &gatedCompleter{}, slog.New(handler))

	resp := f.post(t, "/api/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	requestID := resp.Header.Get("X-Request-Id")
	require.NotEmpty(t, requestID)
	f.waitIdle(t)

	logs := out.String()
	assert.Contains(t, logs, "message accepted")
	assert.Contains(t, logs, "request_id="+requestID)
}

func TestGetConversation_Empty(t *testing.T) {
	f := newFixture(t, &gatedCompleter{})

	view := f.conversation(t)
	assert.Equal(t, "conversation", view.Type)
	assert.Equal(t, "idle", view.State)
	assert.Empty(t, view.Messages)
	assert.True(t, strings.HasPrefix(view.Transcript, "conversation_"))
}

func TestPostMessage_RoundTrip(t *testing.T) {
	f := newFixture(t, &gatedCompleter{})

	resp := f.post(t, "/api/messages", `{"text":"hi there"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var sent messageView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	assert.Equal(t, "user", sent.Role)
	assert.Equal(t, "hi there", sent.Text)

	f.waitIdle(t)
	view := f.conversation(t)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "assistant", view.Messages[1].Role)
	assert.Equal(t, "echo: hi there", view.Messages[1].Text)
	assert.False(t, view.Messages[1].Pending)
}

func TestPostMessage_Errors(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, &gatedCompleter{gate: gate})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"text":`, http.StatusBadRequest},
		{"empty", `{"text":"   "}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/api/messages", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	resp := f.post(t, "/api/messages", `{"text":"first"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	view := f.conversation(t)
	assert.Equal(t, "awaiting_response", view.State)
	require.Len(t, view.Messages, 2)
	assert.True(t, view.Messages[1].Pending)

	resp = f.post(t, "/api/messages", `{"text":"second"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(gate)
	f.waitIdle(t)
	assert.Len(t, f.conversation(t).Messages, 2)
}

func TestPostReset(t *testing.T) {
	f := newFixture(t, &gatedCompleter{})

	f.post(t, "/api/messages", `{"text":"hello"}`)
	f.waitIdle(t)
	before := f.conversation(t).Transcript

	resp := f.post(t, "/api/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := f.conversation(t)
	assert.Empty(t, view.Messages)
	assert.NotEqual(t, before, view.Transcript)
}

func TestGetCost(t *testing.T) {
	f := newFixture(t, &gatedCompleter{})

	resp, err := http.Get(f.ts.URL + "/api/cost")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cost costView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cost))
	assert.InDelta(t, 2.5, cost.Total, 1e-9)
	assert.Equal(t, 1, cost.MonthStart.Day())
}

func TestGetTranscript(t *testing.T) {
	f := newFixture(t, &gatedCompleter{})

	f.post(t, "/api/messages", `{"text":"hello"}`)
	f.waitIdle(t)

	resp, err := http.Get(f.ts.URL + "/api/transcript")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hello")
	assert.Contains(t, string(body), "echo: hello")
}

func TestGetExport(t *testing.T) {
	f := newFixture(t, &gatedCompleter{})

	resp, err := http.Get(f.ts.URL + "/api/export")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.post(t, "/api/messages", `{"text":"hello"}`)
	f.waitIdle(t)

	resp, err = http.Get(f.ts.URL + "/api/export?format=pdf")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(f.ts.URL + "/api/export?format=html")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "echo: hello")
}

func TestWebSocket_StreamsConversation(t *testing.T) {
	f := newFixture(t, &gatedCompleter{})

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first conversationView
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "idle", first.State)

	require.Eventually(t, func() bool { return f.srv.Hub().Count() == 1 }, time.Second, 10*time.Millisecond)

	f.post(t, "/api/messages", `{"text":"ping"}`)

	sawPending, sawReply, sawCost := false, false, false
	deadline := time.Now().Add(3 * time.Second)
	for !(sawReply && sawCost) {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var event struct {
			Type     string        `json:"type"`
			State    string        `json:"state"`
			Messages []messageView `json:"messages"`
			Total    float64       `json:"total"`
		}
		require.NoError(t, json.Unmarshal(data, &event))

		switch event.Type {
		case "conversation":
			if event.State == "awaiting_response" {
				sawPending = true
			}
			if event.State == "idle" && len(event.Messages) == 2 {
				assert.Equal(t, "echo: ping", event.Messages[1].Text)
				sawReply = true
			}
		case "cost":
			assert.InDelta(t, 2.5, event.Total, 1e-9)
			sawCost = true
		}
	}
	assert.True(t, sawPending)
}
