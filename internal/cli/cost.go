// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdesk/internal/app"
	"github.com/jeranaias/chatdesk/internal/telemetry"
)

func newCostCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Show the month-to-date spend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer logger.Close()

			ledger, path, err := app.OpenLedger(cfg, logger.Logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			total, err := ledger.MonthlyCost(cmd.Context())
			if err != nil {
				return fmt.Errorf("read cost ledger: %w", err)
			}
			since := telemetry.MonthStart(time.Now())

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"month_start": since,
					"total":       total,
					"ledger":      path,
				})
			}
			fmt.Fprintln(out, RenderField("Since", since.Format("2006-01-02")))
			fmt.Fprintln(out, RenderField("Spent", FormatCost(total)))
			fmt.Fprintln(out, RenderField("Ledger", path))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
