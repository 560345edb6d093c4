package core

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"time"
)

// State is the epidemic compartment of a single cell.
type State uint8

const (
	Susceptible State = iota
	Infected
	Recovered
)

func (s State) String() string {
	switch s {
	case Susceptible:
		return "S"
	case Infected:
		return "I"
	case Recovered:
		return "R"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Cell is one site of a Space. X and Y are grid coordinates; contact graph
// nodes carry their identity in ID and leave X, Y at zero.
type Cell struct {
	ID    int
	X, Y  int
	State State
}

// StepStats reports the outcome of a single tick.
type StepStats struct {
	Tick             int
	NewlyInfected    int
	NewlyRecovered   int
	TotalSusceptible int
	TotalInfected    int
	TotalRecovered   int
	StepDuration     time.Duration
}

// Total returns S+I+R.
func (s StepStats) Total() int {
	return s.TotalSusceptible + s.TotalInfected + s.TotalRecovered
}

func (s StepStats) String() string {
	return fmt.Sprintf("step %d: +%d infected +%d recovered | S=%d I=%d R=%d | %s",
		s.Tick, s.NewlyInfected, s.NewlyRecovered,
		s.TotalSusceptible, s.TotalInfected, s.TotalRecovered, s.StepDuration)
}

// Engine is the contract every stepping strategy satisfies. An engine is
// Running until no cell is Infected (Finished), a tick fails (Failed) or
// Shutdown is called. A failed Step returns the stats of whatever it
// committed (zero stats when nothing was) and every later Step returns
// ErrFailed wrapping the first failure.
type Engine interface {
	Name() string
	// Step applies the transition rule once to every cell.
	Step(tick int) (StepStats, error)
	// IsFinished reports whether no cell is Infected.
	IsFinished() bool
	// CurrentState returns a detached snapshot of every cell.
	CurrentState() []Cell
	// Shutdown releases worker resources. It is idempotent.
	Shutdown() error
}

// Options tune how an engine exploits parallel hardware. They never
// change the transition rule.
type Options struct {
	// Threads is the worker count for chunked engines and the fork budget
	// for fork-join. Zero selects runtime.NumCPU().
	Threads int
	// LeafThreshold is the fork-join range size processed without splitting.
	// Zero selects DefaultLeafThreshold.
	LeafThreshold int
	// ShutdownGrace bounds how long Shutdown waits for workers to drain
	// before forcing termination. Zero selects DefaultShutdownGrace.
	ShutdownGrace time.Duration
	Logger        *slog.Logger
}

// Factory constructs an engine over its own copy of space.
type Factory func(space Space, cfg Configuration, opts Options) (Engine, error)

var engines = map[string]Factory{}

// Register adds an engine factory under the provided name.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		return
	}
	engines[name] = f
}

// Engines returns a copy of the registry of available engine factories.
func Engines() map[string]Factory {
	return maps.Clone(engines)
}

// EngineNames lists registered engines in lexical order.
func EngineNames() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewEngine looks up name in the registry and builds the engine.
func NewEngine(name string, space Space, cfg Configuration, opts Options) (Engine, error) {
	f, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown engine %q (available: %v)", ErrInvalidConfig, name, EngineNames())
	}
	return f(space, cfg, opts)
}
