package main

import (
	"fmt"
	"io"

	"github.com/alexjbarnes/keepsync/internal/config"
	"github.com/alexjbarnes/keepsync/internal/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			return printHistory(cfg.StateDB, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show, 0 for all")

	return cmd
}

// printHistory writes the latest runs to w as a YAML list, newest first.
func printHistory(path string, limit int, w io.Writer) error {
	history, err := state.LoadAt(path)
	if err != nil {
		return fmt.Errorf("loading run history: %w", err)
	}
	defer history.Close()

	runs, err := history.Runs(limit)
	if err != nil {
		return fmt.Errorf("reading run history: %w", err)
	}

	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(runs); err != nil {
		return fmt.Errorf("encoding run history: %w", err)
	}

	return enc.Close()
}
