// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdesk/internal/app"
	"github.com/jeranaias/chatdesk/internal/server"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversation over a local HTTP API",
		Long: `Serve the conversation over HTTP and push every change to websocket
clients on /ws. The API has no authentication; keep it on a loopback address.`,
		Example: `  $ chatdesk serve
  $ curl -X POST localhost:8765/api/messages -d '{"text":"hello"}' -H 'Content-Type: application/json'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer logger.Close()

			a, err := app.New(cfg, logger.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(server.Deps{
				Manager: a.Manager,
				Queue:   a.Queue,
				Worker:  a.Worker,
				Costs:   a.Ledger,
				Logger:  a.Logger.With("component", "server"),
				Model:   cfg.Provider.Model,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(cmd.OutOrStdout(), RenderField("Listening", "http://"+cfg.Server.Addr))
			return srv.Run(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
