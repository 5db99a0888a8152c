// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app assembles a chatdesk session from configuration.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jeranaias/chatdesk/internal/config"
	ctxdocs "github.com/jeranaias/chatdesk/internal/context"
	"github.com/jeranaias/chatdesk/internal/conversation"
	"github.com/jeranaias/chatdesk/internal/delivery"
	"github.com/jeranaias/chatdesk/internal/plugin"
	"github.com/jeranaias/chatdesk/internal/provider"
	"github.com/jeranaias/chatdesk/internal/storage"
	"github.com/jeranaias/chatdesk/internal/telemetry"
)

// App holds every long-lived component of a session.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Ledger      *telemetry.Ledger
	LedgerPath  string
	Client      *provider.Client
	Dispatcher  *plugin.Dispatcher
	Context     *ctxdocs.Loader
	Transcripts *storage.TranscriptStore
	Manager     *conversation.Manager
	Queue       *delivery.Queue
	Worker      *delivery.Worker
}

// New wires the components described by cfg. It fails fast when the
// context directory is configured but missing or empty.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loader := ctxdocs.NewLoader(config.ResolvePath(cfg.Context.Dir))
	if err := loader.Validate(); err != nil {
		return nil, err
	}

	ledger, ledgerPath, err := OpenLedger(cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(cfg, ledger, logger)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	transcripts, err := storage.NewTranscriptStore(config.ResolvePath(cfg.Transcripts.Dir))
	if err != nil {
		ledger.Close()
		return nil, err
	}

	names := cfg.Plugins.Enabled
	if names == nil {
		names = plugin.DefaultOrder
	}
	dispatcher := plugin.Load(names, plugin.Builtins(), logger.With("component", "plugins"))

	mgr := conversation.NewManager(client, dispatcher, transcripts, logger.With("component", "conversation"))
	if loader.Enabled() {
		mgr.WithContext(loader)
	}

	queue := delivery.NewQueue()
	// The worker outlives a single request attempt so retries can finish.
	timeout := time.Duration(cfg.Provider.TimeoutSeconds*(cfg.Provider.MaxRetries+1)) * time.Second

	logger.Info("session ready",
		"model", cfg.Provider.Model,
		"mock", cfg.Provider.Mock,
		"ledger", ledgerPath,
		"transcripts", transcripts.Dir(),
		"context", loader.Dir(),
		"plugins", dispatcher.Names(),
	)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Ledger:      ledger,
		LedgerPath:  ledgerPath,
		Client:      client,
		Dispatcher:  dispatcher,
		Context:     loader,
		Transcripts: transcripts,
		Manager:     mgr,
		Queue:       queue,
		Worker:      delivery.NewWorker(queue, timeout, logger.With("component", "worker")),
	}, nil
}

// Close stops background work and releases the ledger.
func (a *App) Close() error {
	a.Logger.Debug("closing session",
		"active_jobs", a.Worker.Active(),
		"pending_updates", a.Queue.Len(),
	)
	a.Worker.Stop()
	a.Queue.Close()
	if a.Context.Enabled() {
		st := a.Context.CacheStats()
		a.Logger.Debug("context cache", "hits", st.Hits, "misses", st.Misses, "entries", st.Entries)
	}
	return a.Ledger.Close()
}

// OpenLedger opens the configured cost ledger backend.
func OpenLedger(cfg *config.Config, logger *slog.Logger) (*telemetry.Ledger, string, error) {
	path := config.ResolvePath(cfg.Ledger.Path)

	var store telemetry.Store
	var err error
	switch strings.ToLower(cfg.Ledger.Backend) {
	case "", "file":
		store, err = telemetry.NewFileStore(path)
	case "sqlite":
		store, err = telemetry.NewSQLiteStore(path)
	default:
		err = fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open cost ledger: %w", err)
	}
	return telemetry.NewLedger(store, logger.With("component", "ledger")), path, nil
}

// NewClient builds the provider client. In mock mode replies are local and
// no cost is recorded.
func NewClient(cfg *config.Config, recorder provider.Recorder, logger *slog.Logger) (*provider.Client, error) {
	tokenizer, err := provider.NewBPETokenizer(provider.DefaultEncoding)
	if err != nil {
		return nil, err
	}

	var transport provider.Transport
	if cfg.Provider.Mock {
		transport = provider.MockTransport{}
		recorder = nil
	} else {
		if cfg.Provider.APIKey == "" {
			logger.Warn("no API key configured; requests will fail until one is set")
		}
		transport = provider.NewAnthropicTransport(cfg.Provider.APIKey, logger.With("component", "anthropic")).
			WithBaseURL(cfg.Provider.BaseURL).
			WithTimeout(time.Duration(cfg.Provider.TimeoutSeconds) * time.Second).
			WithMaxRetries(cfg.Provider.MaxRetries)
	}

	client := provider.NewClient(transport, tokenizer, recorder, logger.With("component", "provider")).
		WithSettings(provider.Settings{
			Model:        cfg.Provider.Model,
			MaxTokens:    cfg.Provider.MaxTokens,
			Temperature:  cfg.Provider.Temperature,
			SystemPrompt: cfg.Provider.SystemPrompt,
		}).
		WithPricing(provider.Pricing{
			InputPerMTok:      cfg.Pricing.InputPerMTok,
			ImagePerMTok:      cfg.Pricing.ImagePerMTok,
			OutputPerMTok:     cfg.Pricing.OutputPerMTok,
			ImageTokenDivisor: cfg.Pricing.ImageTokenDivisor,
		})
	if cfg.Provider.RequestsPerMinute > 0 {
		client.WithRequestsPerMinute(cfg.Provider.RequestsPerMinute)
	}
	return client, nil
}

// IsContextError reports whether err is a context directory problem.
func IsContextError(err error) bool {
	var dirErr *ctxdocs.DirectoryError
	return errors.As(err, &dirErr)
}
