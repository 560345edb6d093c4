package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"sirsim/internal/sweep"
	prng "sirsim/pkg/core"
)

// equivalenceT is the |t| above which an engine's mean ticks to extinction
// is reported as differing from the baseline.
const equivalenceT = 4.5

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Check that engines agree statistically over many seeds",
		Long: `Run every selected engine once per seed and compare the distribution of
ticks to extinction against a baseline engine using Welch's t statistic.

Examples:
  sirsim compare --seeds 200 --set width=30 --set height=30
  sirsim compare --baseline sequential --engines sequential,forkjoin --json
  sirsim compare --file contacts.csv --seeds 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			n, _ := f.GetInt("seeds")
			first, _ := f.GetInt64("first-seed")
			workers, _ := f.GetInt("workers")
			baseline, _ := f.GetString("baseline")

			opts := sweep.Options{
				Config:   cfg.Simulation,
				Engines:  cfg.Engines.Names,
				Baseline: baseline,
				Seeds:    sweep.Seeds(first, n),
				Engine:   engineOptions(cfg, logger),
				Workers:  workers,
				MaxTicks: cfg.Run.MaxTicks,
			}
			if f.Changed("file") || f.Changed("kind") {
				g, err := loadGraph(cmd, prng.FromSeed(&first))
				if err != nil {
					return err
				}
				seeding, _ := f.GetString("seeding")
				if opts.Space, err = graphSpace(g, seeding); err != nil {
					return err
				}
			}

			rep, err := sweep.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), rep.Stats)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-12s %6s %10s %10s %9s %10s\n", "ENGINE", "N", "MEAN", "STD", "T", "TRUNCATED")
			diverged := 0
			for _, st := range rep.Stats {
				t := fmt.Sprintf("%9.3f", st.T)
				if st.Baseline {
					t = fmt.Sprintf("%9s", "baseline")
				} else if math.Abs(st.T) > equivalenceT {
					diverged++
					t += "!"
				}
				fmt.Fprintf(w, "%-12s %6d %10.2f %10.2f %s %10d\n", st.Engine, st.N, st.Mean, st.Std, t, st.Truncated)
			}
			fmt.Fprintf(w, "\n%d replicates in %s\n", len(rep.Results), rep.Elapsed.Round(time.Millisecond))
			if diverged > 0 {
				return fmt.Errorf("%d engine(s) differ from the baseline (|t| > %.1f)", diverged, equivalenceT)
			}
			return nil
		},
	}
	addSimulationFlags(cmd)
	addGraphSourceFlags(cmd)
	cmd.Flags().String("seeding", seedComponents, "Initial infections on a graph: components or shuffle")
	cmd.Flags().Int("seeds", 50, "Number of consecutive seeds per engine")
	cmd.Flags().Int64("first-seed", 1, "First seed of the sweep")
	cmd.Flags().Int("workers", 0, "Concurrent replicates; 0 means one per CPU")
	cmd.Flags().String("baseline", "", "Engine the others are compared to (default: first engine)")
	return cmd
}
