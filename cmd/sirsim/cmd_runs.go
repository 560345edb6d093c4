package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sirsim/internal/output"
	"sirsim/internal/runner"
	"sirsim/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
		Long: `Inspect run summaries recorded in the SQLite database, or rebuild them
from the gen<N> CSV directories of earlier runs.`,
	}
	cmd.PersistentFlags().String("db", "", "SQLite database (default from config)")
	cmd.AddCommand(newRunsListCmd(), newRunsSummaryCmd(), newRunsScanCmd())
	return cmd
}

// openStore opens the database named by --db or the configuration.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, _, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	path := cfg.Run.Database
	if cmd.Flags().Changed("db") {
		path, _ = cmd.Flags().GetString("db")
	}
	if path == "" {
		return nil, fmt.Errorf("no database configured: pass --db or set run.database")
	}
	return store.Open(cmd.Context(), path)
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs in the order they were recorded",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			f := cmd.Flags()
			var filter store.Filter
			filter.Engine, _ = f.GetString("engine")
			filter.Generation, _ = f.GetString("generation")
			filter.Limit, _ = f.GetInt("limit")
			runs, err := db.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printRecorded(cmd, runs)
		},
	}
	cmd.Flags().String("engine", "", "Only runs of this engine")
	cmd.Flags().String("generation", "", "Only runs of this generation (e.g. gen3)")
	cmd.Flags().Int("limit", 20, "Maximum runs to show; 0 shows all")
	return cmd
}

func printRecorded(cmd *cobra.Command, runs []runner.RunStats) error {
	if jsonOutput(cmd) {
		return writeJSON(cmd.OutOrStdout(), runs)
	}
	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(w, "%-8s %-12s %4s %8s %12s %9s %8s\n", "GEN", "ENGINE", "RUN", "TICKS", "AVG STEP", "GRID", "SEED")
	for _, rs := range runs {
		ticks := fmt.Sprint(rs.Ticks)
		if rs.Truncated {
			ticks += "+"
		}
		grid := fmt.Sprintf("%dx%d", rs.Config.Width, rs.Config.Height)
		fmt.Fprintf(w, "%-8s %-12s %4d %8s %12s %9s %8s\n",
			rs.Generation, rs.Engine, rs.RunNumber, ticks, rs.AvgStep.Round(time.Microsecond), grid, rs.Config.SeedString())
	}
	printTruncationNote(w, runs)
	return nil
}

func newRunsSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Aggregate recorded runs per engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			sums, err := db.Summaries(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), sums)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-12s %6s %9s %10s %10s %12s %12s %12s\n",
				"ENGINE", "RUNS", "TRUNC", "MEAN", "STD", "MEAN STEP", "MIN STEP", "MAX STEP")
			for _, s := range sums {
				fmt.Fprintf(w, "%-12s %6d %9d %10.2f %10.2f %12s %12s %12s\n",
					s.Engine, s.Runs, s.Truncated, s.MeanTicks, s.StdTicks,
					s.MeanStep.Round(time.Microsecond), s.MinStep.Round(time.Microsecond), s.MaxStep.Round(time.Microsecond))
			}
			return nil
		},
	}
}

func newRunsScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Rebuild run summaries from gen<N> CSV directories",
		Long: `Rebuild run summaries from the CSV files under an output directory.
With --import the summaries are also recorded in the database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			dir := cfg.Run.OutputDir
			if len(args) == 1 {
				dir = args[0]
			}
			runs, err := output.Scan(dir, func(path string, err error) {
				logger.Warn("Skipping unreadable run.", "path", path, "error", err)
			})
			if err != nil {
				return err
			}

			if imp, _ := cmd.Flags().GetBool("import"); imp {
				db, err := openStore(cmd)
				if err != nil {
					return err
				}
				defer db.Close()
				for _, rs := range runs {
					if err := db.Save(cmd.Context(), rs); err != nil {
						return err
					}
				}
				logger.Info("Imported runs.", "count", len(runs))
			}
			return printRecorded(cmd, runs)
		},
	}
	cmd.Flags().Bool("import", false, "Record the scanned runs in the database")
	return cmd
}
