package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored synthesis reports",
		Long: `Inspect the synthesis report history.

All history commands require --db pointing at the SQLite database the
synth command wrote to.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		Example: `  # Show the last 20 runs
  loom history list --db loom.db --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			reports, err := store.ListReports(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			for _, r := range reports {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %-20s %-10s %-8s %s\n",
					r.StartedAt.Format(time.RFC3339), r.Phase, r.Manifest,
					r.Framework, r.Environment, r.RunID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports to list")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one report in full",
		Args:  cobra.ExactArgs(1),
		Example: `  # Show a run by ID
  loom history show 3f1c... --db loom.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			report, err := store.GetReport(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, report)
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete reports older than a cutoff",
		Example: `  # Drop reports older than 30 days
  loom history prune --db loom.db --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			pruned, err := store.PruneReports(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d reports\n", pruned)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff for pruning")
	return cmd
}
