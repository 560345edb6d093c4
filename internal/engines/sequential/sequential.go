// Package sequential is the single-goroutine reference engine. Every other
// engine is checked against its trajectories.
package sequential

import (
	"fmt"
	"time"

	"sirsim/internal/core"
	prng "sirsim/pkg/core"
)

// Name is the registry key of this engine.
const Name = "sequential"

// Engine applies the transition rule with one RNG stream drawn in cell
// order.
type Engine struct {
	space core.Space
	rates core.Rates
	rng   *prng.RNG
	marks core.Marks
	tally core.Tally
	life  core.Lifecycle
}

// New returns an engine owning a deep copy of space.
func New(space core.Space, cfg core.Configuration, opts core.Options) (*Engine, error) {
	if err := cfg.ValidateRates(); err != nil {
		return nil, err
	}
	if space == nil || space.Len() == 0 {
		return nil, fmt.Errorf("%w: %s engine needs a non-empty space", core.ErrInvalidConfig, Name)
	}
	if _, err := opts.Normalize(); err != nil {
		return nil, err
	}
	owned := space.Clone()
	e := &Engine{
		space: owned,
		rates: cfg.Rates(),
		rng:   prng.FromSeed(cfg.Seed),
		tally: core.Census(owned.Cells()),
	}
	e.life.Observe(e.tally.I)
	return e, nil
}

// Name returns the engine identifier.
func (e *Engine) Name() string { return Name }

// Step runs one decide-then-apply tick.
func (e *Engine) Step(tick int) (core.StepStats, error) {
	if err := e.life.CanStep(); err != nil {
		return core.StepStats{}, err
	}
	start := time.Now()

	e.marks.Reset()
	core.Decide(e.space, 0, e.space.Len(), e.rates, e.rng, &e.marks)
	infected, recovered := core.Apply(e.space.Cells(), &e.marks)

	e.tally = e.tally.Advance(infected, recovered)
	e.life.Observe(e.tally.I)
	return e.tally.Stats(tick, infected, recovered, time.Since(start)), nil
}

// IsFinished reports whether no cell is Infected.
func (e *Engine) IsFinished() bool { return e.tally.I == 0 }

// CurrentState returns a snapshot of the cells.
func (e *Engine) CurrentState() []core.Cell { return core.Snapshot(e.space.Cells()) }

// Shutdown has no workers to release.
func (e *Engine) Shutdown() error {
	e.life.BeginShutdown()
	return nil
}

func init() {
	core.Register(Name, func(space core.Space, cfg core.Configuration, opts core.Options) (core.Engine, error) {
		e, err := New(space, cfg, opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	})
}
