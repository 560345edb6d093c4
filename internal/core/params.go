package core

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"time"
)

const (
	// DefaultLeafThreshold matches the fork-join split cut-off used when
	// Options.LeafThreshold is zero.
	DefaultLeafThreshold = 2000
	// DefaultShutdownGrace bounds worker draining in Shutdown.
	DefaultShutdownGrace = 800 * time.Millisecond
)

// Configuration holds the immutable parameters of one simulation run.
type Configuration struct {
	Width                int     `json:"grid_width" yaml:"grid_width"`
	Height               int     `json:"grid_height" yaml:"grid_height"`
	InitialInfected      int     `json:"initial_infected_count" yaml:"initial_infected_count"`
	InfectionProbability float64 `json:"infection_probability" yaml:"infection_probability"`
	RecoveryProbability  float64 `json:"recovery_probability" yaml:"recovery_probability"`
	// Seed makes a run reproducible. Nil draws a fresh seed per RNG.
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultConfiguration returns the standard configuration.
func DefaultConfiguration() Configuration {
	return Configuration{
		Width:                100,
		Height:               100,
		InitialInfected:      5,
		InfectionProbability: 0.1,
		RecoveryProbability:  0.05,
	}
}

// Rates are the per-tick transition probabilities.
type Rates struct {
	Infection float64
	Recovery  float64
}

// Rates returns the transition probabilities of c.
func (c Configuration) Rates() Rates {
	return Rates{Infection: c.InfectionProbability, Recovery: c.RecoveryProbability}
}

// CellCount returns Width*Height.
func (c Configuration) CellCount() int { return c.Width * c.Height }

// WithSeed returns a copy of c using seed.
func (c Configuration) WithSeed(seed int64) Configuration {
	c.Seed = &seed
	return c
}

// SeedString renders the seed for logs and reports.
func (c Configuration) SeedString() string {
	if c.Seed == nil {
		return "random"
	}
	return strconv.FormatInt(*c.Seed, 10)
}

// Validate rejects impossible grid runs. Nothing is clamped.
func (c Configuration) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: grid dimensions must be positive, got %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.InitialInfected < 0 {
		return fmt.Errorf("%w: initial infected count must be non-negative, got %d", ErrInvalidConfig, c.InitialInfected)
	}
	return c.ValidateRates()
}

// ValidateRates checks only the probabilities; contact-graph runs ignore
// the grid dimensions.
func (c Configuration) ValidateRates() error {
	if !isProbability(c.InfectionProbability) {
		return fmt.Errorf("%w: infection probability must be in [0,1], got %v", ErrInvalidConfig, c.InfectionProbability)
	}
	if !isProbability(c.RecoveryProbability) {
		return fmt.Errorf("%w: recovery probability must be in [0,1], got %v", ErrInvalidConfig, c.RecoveryProbability)
	}
	return nil
}

func isProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// FromMap populates a configuration from flag-style key/value pairs on top
// of the defaults.
func FromMap(cfg map[string]string) (Configuration, error) {
	return DefaultConfiguration().Apply(cfg)
}

// Apply overrides fields of c from key/value pairs. Unknown keys and
// unparsable values are errors.
func (c Configuration) Apply(kv map[string]string) (Configuration, error) {
	for key, v := range kv {
		var err error
		switch key {
		case "w", "width":
			c.Width, err = strconv.Atoi(v)
		case "h", "height":
			c.Height, err = strconv.Atoi(v)
		case "infected", "initial_infected":
			c.InitialInfected, err = strconv.Atoi(v)
		case "p_inf", "infection_probability":
			c.InfectionProbability, err = strconv.ParseFloat(v, 64)
		case "p_rec", "recovery_probability":
			c.RecoveryProbability, err = strconv.ParseFloat(v, 64)
		case "seed":
			if v == "" || v == "random" {
				c.Seed = nil
				continue
			}
			var seed int64
			seed, err = strconv.ParseInt(v, 10, 64)
			if err == nil {
				c.Seed = &seed
			}
		default:
			return c, fmt.Errorf("%w: unknown parameter %q", ErrInvalidConfig, key)
		}
		if err != nil {
			return c, fmt.Errorf("%w: parameter %q: %v", ErrInvalidConfig, key, err)
		}
	}
	return c, nil
}

// Normalize validates o and fills zero fields with defaults.
func (o Options) Normalize() (Options, error) {
	if o.Threads < 0 {
		return o, fmt.Errorf("%w: threads must be non-negative, got %d", ErrInvalidConfig, o.Threads)
	}
	if o.LeafThreshold < 0 {
		return o, fmt.Errorf("%w: leaf threshold must be non-negative, got %d", ErrInvalidConfig, o.LeafThreshold)
	}
	if o.ShutdownGrace < 0 {
		return o, fmt.Errorf("%w: shutdown grace must be non-negative, got %s", ErrInvalidConfig, o.ShutdownGrace)
	}
	if o.Threads == 0 {
		o.Threads = runtime.NumCPU()
	}
	if o.LeafThreshold == 0 {
		o.LeafThreshold = DefaultLeafThreshold
	}
	if o.ShutdownGrace == 0 {
		o.ShutdownGrace = DefaultShutdownGrace
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o, nil
}

// ParamType enumerates supported parameter value kinds.
type ParamType string

const (
	// ParamTypeInt denotes integer-valued parameters.
	ParamTypeInt ParamType = "int"
	// ParamTypeFloat denotes floating-point parameters.
	ParamTypeFloat ParamType = "float"
	// ParamTypeString denotes free-form parameters such as the seed.
	ParamTypeString ParamType = "string"
)

// Parameter describes a single configuration value.
type Parameter struct {
	Key   string    `json:"key" yaml:"key"`
	Label string    `json:"label" yaml:"label"`
	Type  ParamType `json:"type" yaml:"type"`
	Value string    `json:"value" yaml:"value"`
}

// ParameterGroup clusters related parameters for presentation purposes.
type ParameterGroup struct {
	Name   string      `json:"name" yaml:"name"`
	Params []Parameter `json:"params" yaml:"params"`
}

// ParameterSnapshot captures a configuration for reports.
type ParameterSnapshot struct {
	Groups []ParameterGroup `json:"groups" yaml:"groups"`
}

// Parameters describes c grouped by concern.
func (c Configuration) Parameters() ParameterSnapshot {
	return ParameterSnapshot{Groups: []ParameterGroup{
		{
			Name: "Grid",
			Params: []Parameter{
				intParam("width", "Width", c.Width),
				intParam("height", "Height", c.Height),
				intParam("initial_infected", "Initial infected", c.InitialInfected),
			},
		},
		{
			Name: "Epidemic",
			Params: []Parameter{
				floatParam("infection_probability", "Infection probability", c.InfectionProbability),
				floatParam("recovery_probability", "Recovery probability", c.RecoveryProbability),
			},
		},
		{
			Name:   "Randomness",
			Params: []Parameter{{Key: "seed", Label: "Seed", Type: ParamTypeString, Value: c.SeedString()}},
		},
	}}
}

func intParam(key, label string, v int) Parameter {
	return Parameter{Key: key, Label: label, Type: ParamTypeInt, Value: strconv.Itoa(v)}
}

func floatParam(key, label string, v float64) Parameter {
	return Parameter{Key: key, Label: label, Type: ParamTypeFloat, Value: strconv.FormatFloat(v, 'f', 3, 64)}
}
