package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long: `Show the configuration after defaults, --config, SIRSIM_* environment
variables and flags have been applied.`,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigParamsCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	addSimulationFlags(cmd)
	addBatchFlags(cmd)
	return cmd
}

func newConfigParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "List the simulation parameters by group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			snap := cfg.Simulation.Parameters()
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			w := cmd.OutOrStdout()
			for _, group := range snap.Groups {
				fmt.Fprintf(w, "%s:\n", group.Name)
				for _, p := range group.Params {
					fmt.Fprintf(w, "  %-24s %s\n", p.Label, p.Value)
				}
			}
			return nil
		},
	}
	addSimulationFlags(cmd)
	return cmd
}
