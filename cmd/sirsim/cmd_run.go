package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"sirsim/internal/config"
	"sirsim/internal/core"
	"sirsim/internal/output"
	"sirsim/internal/runner"
	"sirsim/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the selected engines on a seeded grid",
		Long: `Run every selected engine the configured number of times on a W x H grid.

Each invocation creates the next gen<N> directory under the output directory,
holding config.yaml and one CSV of per-tick statistics per engine run. When a
database is configured, run summaries are recorded there as well.

Examples:
  sirsim run --set width=200 --set height=200 --set seed=42
  sirsim run --engines forkjoin,chunked --threads 8 --runs 5
  sirsim run --output "" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			sim := cfg.Simulation
			results, err := runBatch(cmd.Context(), cfg, logger, func() (core.Space, error) {
				return core.BuildGrid(sim)
			})
			if err != nil && len(results) == 0 {
				return err
			}
			if printErr := printRunStats(cmd, results); printErr != nil {
				return printErr
			}
			return err
		},
	}
	addSimulationFlags(cmd)
	addBatchFlags(cmd)
	return cmd
}

// addBatchFlags registers the flags controlling repetition and result
// destinations.
func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("runs", 0, "Runs per engine (default from config)")
	cmd.Flags().String("output", "", "Base directory for gen<N> results; empty string disables CSV output")
	cmd.Flags().String("db", "", "SQLite database to record run summaries in")
	cmd.Flags().Duration("progress", 0, "Interval between progress log lines")
}

func applyBatchFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("runs") {
		cfg.Run.Runs, _ = f.GetInt("runs")
	}
	if f.Changed("output") {
		cfg.Run.OutputDir, _ = f.GetString("output")
	}
	if f.Changed("db") {
		cfg.Run.Database, _ = f.GetString("db")
	}
	if f.Changed("progress") {
		cfg.Run.Progress, _ = f.GetDuration("progress")
	}
}

// runBatch runs every configured engine cfg.Run.Runs times. Each run gets
// a fresh space from build. Results of completed runs are returned even
// when a later run fails.
func runBatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, build func() (core.Space, error)) ([]runner.RunStats, error) {
	opts := engineOptions(cfg, logger)

	var mgr *output.Manager
	if cfg.Run.OutputDir != "" {
		var err error
		mgr, err = output.NewGeneration(cfg.Run.OutputDir, cfg.Simulation)
		if err != nil {
			return nil, err
		}
		logger.Info("Writing results.", "dir", mgr.Dir())
	}

	var db *store.Store
	if cfg.Run.Database != "" {
		var err error
		db, err = store.Open(ctx, cfg.Run.Database)
		if err != nil {
			return nil, err
		}
		defer db.Close()
	}

	var results []runner.RunStats
	for _, name := range cfg.Engines.Names {
		for run := 1; run <= cfg.Run.Runs; run++ {
			rs, err := runOne(ctx, name, run, cfg, opts, mgr, build)
			if err != nil {
				return results, err
			}
			if db != nil {
				if err := db.Save(ctx, rs); err != nil {
					return results, err
				}
			}
			results = append(results, rs)
		}
	}
	return results, nil
}

func runOne(ctx context.Context, name string, run int, cfg *config.Config, opts core.Options, mgr *output.Manager, build func() (core.Space, error)) (runner.RunStats, error) {
	space, err := build()
	if err != nil {
		return runner.RunStats{}, err
	}
	e, err := core.NewEngine(name, space, cfg.Simulation, opts)
	if err != nil {
		return runner.RunStats{}, err
	}

	runOpts := runner.Options{
		MaxTicks:  cfg.Run.MaxTicks,
		Progress:  cfg.Run.Progress,
		RunNumber: run,
		Config:    cfg.Simulation,
	}
	if mgr == nil {
		return runner.Run(ctx, e, runOpts)
	}

	runOpts.Generation = mgr.Generation()
	w, err := mgr.CreateRun(name, run)
	if err != nil {
		return runner.RunStats{}, errors.Join(err, e.Shutdown())
	}
	rs, err := runner.Run(ctx, e, runOpts, w)
	return rs, errors.Join(err, w.Close())
}

func printRunStats(cmd *cobra.Command, results []runner.RunStats) error {
	if jsonOutput(cmd) {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-12s %4s %8s %12s %12s %12s %8s %8s %8s\n",
		"ENGINE", "RUN", "TICKS", "TOTAL", "AVG STEP", "MAX STEP", "S", "I", "R")
	for _, rs := range results {
		ticks := fmt.Sprint(rs.Ticks)
		if rs.Truncated {
			ticks += "+"
		}
		fmt.Fprintf(w, "%-12s %4d %8s %12s %12s %12s %8d %8d %8d\n",
			rs.Engine, rs.RunNumber, ticks,
			rs.TotalTime.Round(time.Microsecond), rs.AvgStep.Round(time.Microsecond), rs.MaxStep.Round(time.Microsecond),
			rs.Final.S, rs.Final.I, rs.Final.R)
	}
	printTruncationNote(w, results)
	return nil
}

func printTruncationNote(w io.Writer, results []runner.RunStats) {
	for _, rs := range results {
		if rs.Truncated {
			fmt.Fprintln(w, "\n+ stopped at the tick limit before the epidemic died out")
			return
		}
	}
}
