package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newProfilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect compliance framework profiles",
		Long: `Inspect the framework profiles available to resolution.

The builtin profiles (baseline, enhanced, maximum) are always present;
--profiles adds profiles loaded from YAML files.`,
	}

	cmd.AddCommand(newProfilesListCommand())
	cmd.AddCommand(newProfilesShowCommand())

	return cmd
}

func newProfilesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known frameworks",
		Example: `  # List builtin and loaded frameworks
  loom profiles list --profiles ./profiles`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			names := rt.profiles.Frameworks()
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				return enc.Encode(names)
			}
			for _, name := range names {
				profile, err := rt.profiles.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-8s %s\n",
					profile.Name, profile.Version, profile.Description)
			}
			return nil
		},
	}
}

func newProfilesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <framework>",
		Short: "Show one framework profile in full",
		Args:  cobra.ExactArgs(1),
		Example: `  # Show the maximum profile
  loom profiles show maximum`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			profile, err := rt.profiles.Lookup(args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(profile)
			}
			data, err := yaml.Marshal(profile)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
