package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sirsim/internal/core"
	"sirsim/internal/graphio"
	"sirsim/internal/sweep"
	prng "sirsim/pkg/core"
)

const (
	seedComponents = "components"
	seedShuffle    = "shuffle"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Run epidemics on contact graphs",
		Long: `Load or generate contact graphs and run the engines on them.

Edge lists are text (whitespace separated pairs, # comments) or CSV with
';' separators. Generated graphs are Erdős–Rényi G(n,p) or Barabási–Albert
scale-free networks.`,
	}
	cmd.AddCommand(newGraphRunCmd(), newGraphGenerateCmd())
	return cmd
}

// addGraphSourceFlags registers the flags that select a contact graph.
func addGraphSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("file", "", "Edge list to load (.csv for ';' separated, text otherwise)")
	cmd.Flags().String("kind", string(graphio.ScaleFree), "Graph model to generate: erdos-renyi or scale-free")
	cmd.Flags().Int("nodes", 1000, "Node count of a generated graph")
	cmd.Flags().Float64("param", 0, "Edge probability (erdos-renyi) or attachment count (scale-free)")
}

// loadGraph returns the graph named by --file, or generates one from
// --kind, --nodes and --param with rng.
func loadGraph(cmd *cobra.Command, rng *prng.RNG) (*core.ContactGraph, error) {
	f := cmd.Flags()
	if path, _ := f.GetString("file"); path != "" {
		return graphio.Load(path)
	}
	kind, _ := f.GetString("kind")
	nodes, _ := f.GetInt("nodes")
	param, _ := f.GetFloat64("param")
	return graphio.Generate(graphio.Kind(kind), nodes, param, rng)
}

// graphSpace seeds a fresh copy of g for every call. With "components"
// one node per connected component is infected; with "shuffle" count
// uniformly chosen nodes are.
func graphSpace(g *core.ContactGraph, seeding string) (sweep.SpaceFunc, error) {
	switch seeding {
	case seedComponents, seedShuffle:
	default:
		return nil, fmt.Errorf("%w: unknown seeding %q (valid: %s, %s)", core.ErrInvalidConfig, seeding, seedComponents, seedShuffle)
	}
	return func(cfg core.Configuration) (core.Space, error) {
		c := g.Copy()
		rng := prng.FromSeed(cfg.Seed)
		if seeding == seedComponents {
			if _, err := c.SeedComponents(context.Background(), rng); err != nil {
				return nil, err
			}
		} else {
			core.SeedShuffle(c.Cells(), cfg.InitialInfected, rng)
		}
		return c, nil
	}, nil
}

func newGraphRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the selected engines on a contact graph",
		Long: `Run every selected engine on a loaded or generated contact graph.

Examples:
  sirsim graph run --file contacts.csv --seeding components
  sirsim graph run --kind erdos-renyi --nodes 5000 --param 0.002 --set seed=7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			g, err := loadGraph(cmd, prng.FromSeed(cfg.Simulation.Seed))
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("save"); path != "" {
				if err := graphio.Save(path, g); err != nil {
					return err
				}
			}
			seeding, _ := cmd.Flags().GetString("seeding")
			space, err := graphSpace(g, seeding)
			if err != nil {
				return err
			}
			comps, err := g.Components(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("Contact graph ready.", "nodes", g.Len(), "edges", g.EdgeCount(), "components", len(comps))

			sim := cfg.Simulation
			results, err := runBatch(cmd.Context(), cfg, logger, func() (core.Space, error) {
				return space(sim)
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
	addGraphSourceFlags(cmd)
	cmd.Flags().String("seeding", seedComponents, "Initial infections: components (one per component) or shuffle (initial_infected nodes)")
	cmd.Flags().String("save", "", "Also write the graph to this edge list")
	return cmd
}

func newGraphGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <out>",
		Short: "Generate a random contact graph and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetInt64("seed")
			var s *int64
			if cmd.Flags().Changed("seed") {
				s = &seed
			}
			g, err := loadGraph(cmd, prng.FromSeed(s))
			if err != nil {
				return err
			}
			if err := graphio.Save(args[0], g); err != nil {
				return err
			}
			comps, err := g.Components(cmd.Context())
			if err != nil {
				return err
			}

			summary := map[string]any{
				"path":       args[0],
				"nodes":      g.Len(),
				"edges":      g.EdgeCount(),
				"components": len(comps),
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d nodes, %d edges (%d components) to %s\n",
				g.Len(), g.EdgeCount(), len(comps), args[0])
			return nil
		},
	}
	addGraphSourceFlags(cmd)
	cmd.Flags().Int64("seed", 0, "Generator seed; omitted draws a fresh one")
	return cmd
}
