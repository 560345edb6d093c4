// Package config provides unified configuration loading for sirsim.
// Settings are layered: defaults, then an optional YAML file, then SIRSIM_*
// environment variables. Command-line flags are applied last by the CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sirsim/internal/core"
)

// Config contains all sirsim settings.
type Config struct {
	// Simulation is the epidemic run configuration.
	Simulation core.Configuration `json:"simulation" yaml:"simulation"`

	// Engines selects and tunes the stepping engines.
	Engines EnginesConfig `json:"engines" yaml:"engines"`

	// Run controls the driver loop and where results go.
	Run RunConfig `json:"run" yaml:"run"`

	// Logging contains settings for operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// EnginesConfig selects engines and their parallelism.
type EnginesConfig struct {
	// Names lists the engines to run, in order.
	Names []string `json:"names" yaml:"names"`

	// Threads is the worker count; 0 means one per CPU.
	Threads int `json:"threads" yaml:"threads"`

	// LeafThreshold is the fork-join leaf size; 0 selects the default.
	LeafThreshold int `json:"leaf_threshold,omitempty" yaml:"leaf_threshold,omitempty"`

	// ShutdownGrace bounds worker draining on shutdown.
	ShutdownGrace time.Duration `json:"shutdown_grace" yaml:"shutdown_grace"`
}

// RunConfig controls the driver.
type RunConfig struct {
	// Runs repeats every engine this many times per generation.
	Runs int `json:"runs" yaml:"runs"`

	// MaxTicks stops a run that has not finished; 0 means unlimited.
	MaxTicks int `json:"max_ticks" yaml:"max_ticks"`

	// Progress is the interval between progress reports.
	Progress time.Duration `json:"progress" yaml:"progress"`

	// OutputDir is the base directory for gen<N> run directories. Empty
	// disables CSV output.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Database is the SQLite file run summaries are recorded in. Empty
	// disables recording.
	Database string `json:"database" yaml:"database"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: core.DefaultConfiguration(),
		Engines: EnginesConfig{
			Names:         []string{"sequential", "chunked", "forkjoin", "future"},
			ShutdownGrace: core.DefaultShutdownGrace,
		},
		Run: RunConfig{
			Runs:      1,
			MaxTicks:  100000,
			Progress:  10 * time.Second,
			OutputDir: "output",
			Database:  "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns the defaults overlaid with the file at path (when path is
// not empty) and the environment.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys absent
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	config.Run.OutputDir = expandEnvVars(config.Run.OutputDir)
	config.Run.Database = expandEnvVars(config.Run.Database)

	return config, nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if len(c.Engines.Names) == 0 {
		return fmt.Errorf("%w: at least one engine must be selected", core.ErrInvalidConfig)
	}
	if _, err := c.EngineOptions().Normalize(); err != nil {
		return err
	}
	if c.Run.Runs < 1 {
		return fmt.Errorf("%w: runs must be at least 1, got %d", core.ErrInvalidConfig, c.Run.Runs)
	}
	if c.Run.MaxTicks < 0 {
		return fmt.Errorf("%w: max_ticks must be non-negative, got %d", core.ErrInvalidConfig, c.Run.MaxTicks)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: invalid log level %q (valid: trace, debug, info, warn, error)", core.ErrInvalidConfig, c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format %q (valid: text, json)", core.ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// EngineOptions converts the engine section to core.Options. The logger
// is left for the caller.
func (c *Config) EngineOptions() core.Options {
	return core.Options{
		Threads:       c.Engines.Threads,
		LeafThreshold: c.Engines.LeafThreshold,
		ShutdownGrace: c.Engines.ShutdownGrace,
	}
}

// applyEnvOverrides applies SIRSIM_* environment variables to the config.
// Unlike free-form settings, a malformed number is an error rather than
// silently ignored.
func applyEnvOverrides(config *Config) error {
	kv := map[string]string{}
	for env, key := range map[string]string{
		"SIRSIM_WIDTH":                 "width",
		"SIRSIM_HEIGHT":                "height",
		"SIRSIM_INITIAL_INFECTED":      "initial_infected",
		"SIRSIM_INFECTION_PROBABILITY": "infection_probability",
		"SIRSIM_RECOVERY_PROBABILITY":  "recovery_probability",
		"SIRSIM_SEED":                  "seed",
	} {
		if v, ok := os.LookupEnv(env); ok {
			kv[key] = v
		}
	}
	sim, err := config.Simulation.Apply(kv)
	if err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	config.Simulation = sim

	if v := os.Getenv("SIRSIM_ENGINES"); v != "" {
		config.Engines.Names = SplitList(v)
	}
	if err := envInt("SIRSIM_THREADS", &config.Engines.Threads); err != nil {
		return err
	}
	if err := envInt("SIRSIM_MAX_TICKS", &config.Run.MaxTicks); err != nil {
		return err
	}
	if err := envInt("SIRSIM_RUNS", &config.Run.Runs); err != nil {
		return err
	}
	if v := os.Getenv("SIRSIM_OUTPUT_DIR"); v != "" {
		config.Run.OutputDir = v
	}
	if v := os.Getenv("SIRSIM_DATABASE"); v != "" {
		config.Run.Database = v
	}
	if v := os.Getenv("SIRSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SIRSIM_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrInvalidConfig, name, err)
	}
	*dst = n
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
