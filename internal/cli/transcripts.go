// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/storage"
)

func newTranscriptsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transcripts",
		Aliases: []string{"history"},
		Short:   "List or print saved conversations",
	}
	cmd.AddCommand(newTranscriptsListCommand(opts), newTranscriptsShowCommand(opts))
	return cmd
}

func openTranscripts(opts *globalOptions) (*storage.TranscriptStore, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return storage.NewTranscriptStore(config.ResolvePath(cfg.Transcripts.Dir))
}

func newTranscriptsListCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved transcripts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTranscripts(opts)
			if err != nil {
				return err
			}
			metas, err := store.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(metas)
			}
			if len(metas) == 0 {
				fmt.Fprintln(out, DimStyle.Render("No transcripts in "+store.Dir()))
				return nil
			}
			for _, m := range metas {
				fmt.Fprintf(out, "%s  %s  %s\n",
					ValueStyle.Render(m.Name),
					DimStyle.Render(m.UpdatedAt.Format("2006-01-02 15:04")),
					DimStyle.Render(formatBytes(m.Size)),
				)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newTranscriptsShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print a saved transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTranscripts(opts)
			if err != nil {
				return err
			}
			text, err := store.Read(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
