package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel     string
	logFormat    string
	jsonOutput   bool
	profilePaths []string
	rulePaths    []string
	dbPath       string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "OpenLoom - Configuration Resolution and Synthesis Orchestrator",
		Long: `OpenLoom resolves infrastructure manifests through a five-layer
configuration chain and orchestrates their synthesis into deployable
artifacts.

Features:
  - Five-layer configuration resolution with per-value provenance
  - Compliance framework profiles (baseline, enhanced, maximum)
  - Capability-based binding between components
  - Rego governance rules evaluated before synthesis
  - Starlark patch hooks as a post-synthesis escape hatch
  - Synthesis report history in SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringSliceVar(&profilePaths, "profiles", nil, "framework profile files or directories to load")
	rootCmd.PersistentFlags().StringSliceVar(&rulePaths, "rules", nil, "governance rule files or directories to load")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path for report history")

	// Add subcommands
	rootCmd.AddCommand(newSynthCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newProfilesCommand())
	rootCmd.AddCommand(newRulesCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}
