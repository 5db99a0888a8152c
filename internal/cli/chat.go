// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdesk/internal/app"
	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/telemetry"
	"github.com/jeranaias/chatdesk/internal/ui/chat"
	"github.com/jeranaias/chatdesk/internal/ui/styles"
)

type chatOptions struct {
	plain bool
}

func newChatCommand(opts *globalOptions) *cobra.Command {
	var co chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a conversation",
		Long: `Start a conversation with the configured model.

On a terminal this opens the full-screen view. With --plain, or when input
or output is redirected, chatdesk reads one message per line instead.

Commands inside a conversation:
  /reset        start a new conversation
  /cost         show the month-to-date spend
  /transcript   show where the transcript is saved
  /quit         leave`,
		Example: `  $ chatdesk chat
  $ chatdesk chat --plain
  $ echo "hello" | chatdesk chat --mock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, co)
		},
	}
	cmd.Flags().BoolVar(&co.plain, "plain", false, "line mode even on a terminal")
	return cmd
}

func runChat(cmd *cobra.Command, opts *globalOptions, co chatOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	fullScreen := !co.plain && Interactive()
	logger, err := newLogger(cfg, fullScreen)
	if err != nil {
		return err
	}
	defer logger.Close()

	a, err := app.New(cfg, logger.Logger)
	if err != nil {
		if app.IsContextError(err) {
			return fmt.Errorf("cannot start without context documents: %w", err)
		}
		return err
	}
	defer a.Close()

	if fullScreen {
		return runFullScreen(cmd.Context(), a)
	}
	return runLineMode(cmd.Context(), cmd, a)
}

// runFullScreen runs the Bubble Tea view until the user quits.
func runFullScreen(ctx context.Context, a *app.App) error {
	cfg := a.Config
	view := chat.New(chat.Deps{
		Manager:    a.Manager,
		Queue:      a.Queue,
		Worker:     a.Worker,
		Costs:      a.Ledger,
		Theme:      styles.NewTheme(cfg.UI.Theme),
		Logger:     a.Logger.With("component", "ui"),
		ModelName:  modelLabel(cfg),
		Tick:       time.Duration(cfg.UI.TickMS) * time.Millisecond,
		PreviewLen: cfg.UI.PreviewLen,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchLedger(ctx, a, view.NotifyCostChanged)

	p := tea.NewProgram(view, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat view: %w", err)
	}
	if path := a.Manager.TranscriptPath(); path != "" && len(a.Manager.Messages()) > 0 {
		fmt.Println(DimStyle.Render("Transcript saved to " + path))
	}
	return nil
}

// runLineMode runs the line REPL on stdin and stdout.
func runLineMode(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	r := newREPL(a.Manager, a.Queue, a.Worker, a.Ledger, cmd.OutOrStdout(), a.Logger)
	r.in = line
	r.interrupts = interrupts
	r.renderer = newMarkdownRenderer(a.Config.UI.Theme, TerminalWidth())
	r.model = modelLabel(a.Config)
	return r.run(ctx)
}

// watchLedger calls onChange when another process writes the cost ledger.
func watchLedger(ctx context.Context, a *app.App, onChange func()) {
	w, err := telemetry.NewWatcher(a.LedgerPath, 0, a.Logger.With("component", "ledger-watch"))
	if err != nil {
		a.Logger.Warn("cost ledger will not be watched", "error", err)
		return
	}
	go w.Run(ctx, onChange)
}

func modelLabel(cfg *config.Config) string {
	if cfg.Provider.Mock {
		return cfg.Provider.Model + " (mock)"
	}
	return cfg.Provider.Model
}
