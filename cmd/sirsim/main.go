package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"sirsim/internal/config"
	"sirsim/internal/core"
	"sirsim/internal/ctxlog"
	_ "sirsim/internal/engines/chunked"
	_ "sirsim/internal/engines/forkjoin"
	_ "sirsim/internal/engines/future"
	_ "sirsim/internal/engines/sequential"
	"sirsim/internal/logging"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sirsim",
		Short: "SIR epidemic simulator with interchangeable parallel engines",
		Long: `sirsim simulates Susceptible-Infected-Recovered epidemics on a grid or
a contact graph and compares four stepping engines that compute the same
transition rule: sequential, chunked (worker pool), forkjoin and future.

Settings are read from defaults, then --config, then SIRSIM_* environment
variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newCompareCmd(),
		newGraphCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newEnginesCmd(),
	)
	return rootCmd
}

// loadSettings resolves the layered configuration for cmd, installs the
// logger in the command context and validates the result.
func loadSettings(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return cfg, logger, nil
}

// addSimulationFlags registers the flags shared by every command that
// runs engines.
func addSimulationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArray("set", nil, "Simulation parameter override key=value (repeatable): width, height, infected, p_inf, p_rec, seed")
	f.String("engines", "", "Comma-separated engines to run (default from config)")
	f.Int("threads", 0, "Worker threads per engine; 0 means one per CPU")
	f.Int("leaf", 0, "Fork-join leaf threshold; 0 selects the default")
	f.Duration("grace", 0, "Worker shutdown grace period")
	f.Int("max-ticks", 0, "Stop runs that have not finished after this many ticks")
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.Logging.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.Logging.Format, _ = f.GetString("log-format")
	}
	if f.Lookup("runs") != nil {
		applyBatchFlags(cmd, cfg)
	}
	if f.Lookup("set") == nil {
		return nil
	}

	sets, _ := f.GetStringArray("set")
	kv := make(map[string]string, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("%w: --set %q is not key=value", core.ErrInvalidConfig, s)
		}
		kv[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	sim, err := cfg.Simulation.Apply(kv)
	if err != nil {
		return err
	}
	cfg.Simulation = sim

	if f.Changed("engines") {
		v, _ := f.GetString("engines")
		cfg.Engines.Names = config.SplitList(v)
	}
	if f.Changed("threads") {
		cfg.Engines.Threads, _ = f.GetInt("threads")
	}
	if f.Changed("leaf") {
		cfg.Engines.LeafThreshold, _ = f.GetInt("leaf")
	}
	if f.Changed("grace") {
		cfg.Engines.ShutdownGrace, _ = f.GetDuration("grace")
	}
	if f.Changed("max-ticks") {
		cfg.Run.MaxTicks, _ = f.GetInt("max-ticks")
	}
	return nil
}

func engineOptions(cfg *config.Config, logger *slog.Logger) core.Options {
	opts := cfg.EngineOptions()
	opts.Logger = logger
	return opts
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sirsim version %s\n", version)
			return nil
		},
	}
}

func newEnginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the available stepping engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := core.EngineNames()
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), names)
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
