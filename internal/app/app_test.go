// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Provider.Mock = true
	cfg.Ledger.Path = filepath.Join(dir, "cost_log.txt")
	cfg.Transcripts.Dir = filepath.Join(dir, "conversations")
	return cfg
}

func TestNew_MockRoundTrip(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"image_input"}, a.Dispatcher.Names())

	_, err = a.Manager.Submit(context.Background(), "hello")
	require.NoError(t, err)
	reply, err := a.Manager.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "User said: hello", reply.Text())

	// Mock replies are free.
	total, err := a.Ledger.MonthlyCost(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = os.Stat(a.Manager.TranscriptPath())
	assert.NoError(t, err)
}

func TestNew_SQLiteLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Backend = "sqlite"
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "costs.db")

	a, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Ledger.LogCall(context.Background(), 0.25))
	total, err := a.Ledger.MonthlyCost(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.25, total, 1e-9)
}

func TestNew_MissingContextDirFailsFast(t *testing.T) {
	cfg := testConfig(t)
	cfg.Context.Dir = filepath.Join(t.TempDir(), "missing")

	_, err := New(cfg, logging.Discard())
	require.Error(t, err)
	assert.True(t, IsContextError(err))
}

func TestNew_EmptyContextDirFailsFast(t *testing.T) {
	cfg := testConfig(t)
	cfg.Context.Dir = t.TempDir()

	_, err := New(cfg, logging.Discard())
	assert.True(t, IsContextError(err))
}

func TestNew_UnknownPluginSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plugins.Enabled = []string{"nope", "image_input"}

	a, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"image_input"}, a.Dispatcher.Names())
}

func TestClose_LogsSessionState(t *testing.T) {
	cfg := testConfig(t)
	ctxDir := filepath.Join(t.TempDir(), "context")
	require.NoError(t, os.MkdirAll(ctxDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(ctxDir, "rules.txt"), []byte("be terse"), 0644))
	cfg.Context.Dir = ctxDir

	var buf bytes.Buffer
	handler, err := logging.NewHandler(&buf, "text", slog.LevelDebug)
	require.NoError(t, err)

	a, err := New(cfg, slog.New(handler))
	require.NoError(t, err)

	_, err = a.Manager.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	out := buf.String()
	assert.Contains(t, out, "closing session")
	assert.Contains(t, out, "active_jobs=0")
	assert.Contains(t, out, "pending_updates=0")
	assert.True(t, strings.Contains(out, "context cache") && strings.Contains(out, "misses=1"))
}
