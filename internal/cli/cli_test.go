// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatdesk/internal/app"
	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/logging"
)

// isolate points the config directory at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	t.Setenv("CHATDESK_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CHATDESK_MODEL", "")
	t.Setenv("CHATDESK_MOCK", "")
	return home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigInitShowPath(t *testing.T) {
	home := isolate(t)

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(home, "config.toml"))
	assert.FileExists(t, filepath.Join(home, "config.toml"))

	_, err = execute(t, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--force")
	assert.NoError(t, err)

	out, err = execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[provider]")
	assert.Contains(t, out, `model = "claude-3-5-sonnet-latest"`)

	out, err = execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.toml"), strings.TrimSpace(out))
}

func TestConfigShow_RedactsKey(t *testing.T) {
	isolate(t)
	t.Setenv("CHATDESK_API_KEY", "sk-secret")

	out, err := execute(t, "config", "show", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "[REDACTED]")

	out, err = execute(t, "config", "get", "provider.api_key")
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", strings.TrimSpace(out))
}

func TestConfigSetGet(t *testing.T) {
	home := isolate(t)

	_, err := execute(t, "config", "set", "provider.max_tokens", "2000")
	require.NoError(t, err)

	out, err := execute(t, "config", "get", "provider.max_tokens")
	require.NoError(t, err)
	assert.Equal(t, "2000", strings.TrimSpace(out))

	data, err := os.ReadFile(filepath.Join(home, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_tokens = 2000")
}

func TestConfigSet_Rejects(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"provider.nope", "x"}},
		{"bad number", []string{"provider.max_tokens", "lots"}},
		{"fails validation", []string{"provider.max_tokens", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"config", "set"}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestCost_EmptyLedger(t *testing.T) {
	isolate(t)

	out, err := execute(t, "cost")
	require.NoError(t, err)
	assert.Contains(t, out, "$0.0000")

	out, err = execute(t, "cost", "--json")
	require.NoError(t, err)
	var got struct {
		Total float64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Zero(t, got.Total)
}

func TestTranscripts_ListAndShow(t *testing.T) {
	home := isolate(t)

	out, err := execute(t, "transcripts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No transcripts")

	dir := filepath.Join(home, "conversations")
	name := "conversation_20261016_090503.txt"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("**You:** hi\n"), 0644))

	out, err = execute(t, "transcripts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, name)

	out, err = execute(t, "transcripts", "show", name)
	require.NoError(t, err)
	assert.Contains(t, out, "**You:** hi")

	_, err = execute(t, "transcripts", "show", "../config.toml")
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	isolate(t)
	_, err := execute(t, "bogus")
	assert.Error(t, err)
}

// scriptedInput feeds fixed lines to the REPL, then EOF.
type scriptedInput struct {
	lines   []string
	history []string
}

func (s *scriptedInput) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedInput) AppendHistory(item string) {
	s.history = append(s.history, item)
}

func newMockApp(t *testing.T) *app.App {
	t.Helper()
	isolate(t)
	cfg := config.Default()
	cfg.Provider.Mock = true

	a, err := app.New(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestREPL_Conversation(t *testing.T) {
	a := newMockApp(t)

	var out bytes.Buffer
	in := &scriptedInput{lines: []string{"hello", "  ", "/cost", "/transcript", "/bogus", "/quit", "never read"}}
	r := newREPL(a.Manager, a.Queue, a.Worker, a.Ledger, &out, a.Logger)
	r.in = in

	require.NoError(t, r.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "User said: hello")
	assert.Contains(t, text, "$0.0000")
	assert.Contains(t, text, a.Manager.TranscriptPath())
	assert.Contains(t, text, "Unknown command: /bogus")
	assert.Contains(t, text, "Transcript saved to")

	assert.Equal(t, []string{"hello", "/cost", "/transcript", "/bogus", "/quit"}, in.history)
	assert.Equal(t, []string{"never read"}, in.lines)

	msgs := a.Manager.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "User said: hello", msgs[1].Text())
	assert.FileExists(t, a.Manager.TranscriptPath())
}

func TestREPL_Export(t *testing.T) {
	a := newMockApp(t)

	var out bytes.Buffer
	r := newREPL(a.Manager, a.Queue, a.Worker, a.Ledger, &out, a.Logger)
	r.in = &scriptedInput{lines: []string{"/export", "hello", "/export html", "/export pdf"}}

	require.NoError(t, r.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "conversation has no messages")
	assert.Contains(t, text, "unknown export format")

	base := strings.TrimSuffix(a.Manager.TranscriptPath(), ".txt")
	assert.FileExists(t, base+".html")
	assert.Contains(t, text, "Exported "+base+".html")

	page, err := os.ReadFile(base + ".html")
	require.NoError(t, err)
	assert.Contains(t, string(page), "User said: hello")
}

func TestREPL_ResetAndEOF(t *testing.T) {
	a := newMockApp(t)

	var out bytes.Buffer
	r := newREPL(a.Manager, a.Queue, a.Worker, a.Ledger, &out, a.Logger)
	r.in = &scriptedInput{lines: []string{"first", "/reset"}}
	before := a.Manager.TranscriptName()

	require.NoError(t, r.run(context.Background()))

	assert.Contains(t, out.String(), "Started a new conversation.")
	assert.Empty(t, a.Manager.Messages())
	assert.NotEqual(t, before, a.Manager.TranscriptName())
}
