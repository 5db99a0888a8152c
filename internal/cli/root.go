// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/logging"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	model      string
	mock       bool
	logLevel   string
}

// NewRootCommand builds the command tree. Running it without a
// subcommand starts a chat.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "chatdesk",
		Short: "Chat with a hosted language model from the terminal",
		Long: `chatdesk keeps a single conversation with a hosted model, saves a
transcript after every turn and tracks what each call costs.`,
		Example: `  # Start chatting (full screen on a terminal, line mode when piped)
  $ chatdesk

  # Try it without an API key
  $ chatdesk --mock

  # Serve the conversation over HTTP
  $ chatdesk serve --addr 127.0.0.1:8765

  # Month-to-date spend
  $ chatdesk cost`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, chatOptions{})
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.chatdesk/config.toml)")
	flags.StringVarP(&opts.model, "model", "m", "", "model identifier (overrides config)")
	flags.BoolVar(&opts.mock, "mock", false, "answer locally without calling the provider")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newChatCommand(opts),
		newServeCommand(opts),
		newCostCommand(opts),
		newConfigCommand(opts),
		newTranscriptsCommand(opts),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the flags, or the default one,
// then applies flag overrides.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFromPath(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.model != "" {
		cfg.Provider.Model = opts.model
	}
	if opts.mock {
		cfg.Provider.Mock = true
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, nil
}

// newLogger builds the logger for a command. When toFile is set and the
// config points at a terminal stream, logs go to chatdesk.log instead so
// they do not corrupt the screen.
func newLogger(cfg *config.Config, toFile bool) (*logging.Logger, error) {
	lc := cfg.Logging
	switch lc.Output {
	case "", "stderr", "stdout":
		if toFile {
			dir, err := config.ConfigDir()
			if err != nil {
				return nil, err
			}
			lc.Output = filepath.Join(dir, LogFileName)
		}
	case "discard":
	default:
		lc.Output = config.ResolvePath(lc.Output)
	}
	return logging.New(lc)
}

// LogFileName is the log file used while the full-screen UI runs.
const LogFileName = "chatdesk.log"
