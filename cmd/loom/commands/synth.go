package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openloom/openloom/pkg/core"
)

func newSynthCommand() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize a manifest into deployable artifacts",
		Long: `Run the full orchestration pipeline over a manifest.

This command:
  - Parses and schema-validates the manifest
  - Resolves each component's five-layer effective configuration
  - Evaluates the governance gate
  - Synthesizes every component and applies its bindings
  - Applies the patches.star hook next to the manifest, if present
  - Prints the synthesis report (and persists it when --db is set)`,
		Example: `  # Synthesize a manifest
  loom synth -f stack.yaml

  # Synthesize with extra framework profiles and governance rules
  loom synth -f stack.yaml --profiles ./profiles --rules ./rules

  # Keep history in SQLite and emit the report as JSON
  loom synth -f stack.yaml --db loom.db --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			m, err := rt.parser.ParseFile(ctx, manifestPath)
			if err != nil {
				return err
			}

			result, runErr := rt.engine.Run(ctx, m)
			if err := printResult(cmd, result); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "manifest file to synthesize")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// printResult renders a synthesis report, honoring --json.
func printResult(cmd *cobra.Command, result *core.SynthesisResult) error {
	if result == nil {
		return nil
	}
	out := cmd.OutOrStdout()

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "Run %s (%s)\n", result.RunID, result.Phase)
	fmt.Fprintf(out, "  manifest:    %s\n", result.Manifest)
	fmt.Fprintf(out, "  framework:   %s\n", result.Framework)
	fmt.Fprintf(out, "  environment: %s\n", result.Environment)
	fmt.Fprintf(out, "  duration:    %s\n", result.Duration)

	if len(result.Components) > 0 {
		fmt.Fprintln(out, "  components:")
		for _, c := range result.Components {
			fmt.Fprintf(out, "    %-20s %-20s %v\n", c.Name, c.Type, c.Capabilities)
		}
	}
	if len(result.Bindings) > 0 {
		fmt.Fprintln(out, "  bindings:")
		for _, b := range result.Bindings {
			fmt.Fprintf(out, "    %s -> %s  %s (%s, %s)\n",
				b.Source, b.Target, b.Capability, b.Access, b.Strategy)
		}
	}
	if result.PatchesApplied {
		fmt.Fprintln(out, "  patches: applied")
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return nil
}
