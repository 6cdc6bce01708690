package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openloom/openloom/pkg/profiles"
)

func newValidateCommand() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a manifest without synthesizing",
		Long: `Parse and validate a manifest.

This command:
  - Checks YAML syntax and the manifest schema
  - Checks semantic rules (unique names, resolvable bind targets)
  - Checks that the manifest's framework profile is known
  - Resolves every component's effective configuration and runs the
    provisioner's spec validation against it

Nothing is synthesized.`,
		Example: `  # Validate a manifest against the builtin profiles
  loom validate -f stack.yaml

  # Validate against additional profiles
  loom validate -f stack.yaml --profiles ./profiles`,
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

			profile, err := rt.profiles.Lookup(m.Framework)
			if err != nil {
				return err
			}

			fac, err := rt.factories.CreateFactory(m.Framework)
			if err != nil {
				return err
			}
			registry := fac.CreateRegistry()
			env := profiles.EnvironmentFor(profile, m)
			for _, spec := range m.Components {
				if _, err := registry.CreateComponent(spec, env); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d components, framework %s)\n",
				manifestPath, len(m.Components), m.Framework)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "manifest file to validate")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
