package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect governance rules",
		Long: `Inspect the governance rules the gate evaluates before synthesis.

The builtin rules are always present; --rules adds rules loaded from
.rego files.`,
	}

	cmd.AddCommand(newRulesListCommand())
	cmd.AddCommand(newRulesShowCommand())

	return cmd
}

func newRulesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List governance rules",
		Example: `  # List builtin and loaded rules
  loom rules list --rules ./rules`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			rules := rt.gate.ListRules()
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rules)
			}
			for _, rule := range rules {
				state := "enabled"
				if !rule.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-9s %-9s %s\n",
					rule.Name, rule.Severity, state, rule.Description)
			}
			return nil
		},
	}
}

func newRulesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <rule>",
		Short: "Show one rule's Rego source",
		Args:  cobra.ExactArgs(1),
		Example: `  # Show the encryption rule
  loom rules show encryption-required`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			rule, err := rt.gate.GetRule(args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rule)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s (%s)\n%s", rule.Name, rule.Severity, rule.Rego)
			return nil
		},
	}
}
