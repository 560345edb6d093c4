// Package future expresses each chunk of a tick as an asynchronous task
// returning its own decisions. The tick awaits every task before merging
// and applying, like the chunked engine, but without a long-lived pool.
package future

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"sirsim/internal/core"
	prng "sirsim/pkg/core"
)

// Name is the registry key of this engine.
const Name = "future"

// Engine is the future-based implementation.
type Engine struct {
	space  core.Space
	rates  core.Rates
	base   *prng.RNG
	opts   core.Options
	chunks []core.Span
	local  []core.Marks
	marks  core.Marks
	tally  core.Tally
	life   core.Lifecycle
	log    *slog.Logger
}

// New returns an engine owning a deep copy of space.
func New(space core.Space, cfg core.Configuration, opts core.Options) (*Engine, error) {
	if err := cfg.ValidateRates(); err != nil {
		return nil, err
	}
	if space == nil || space.Len() == 0 {
		return nil, fmt.Errorf("%w: %s engine needs a non-empty space", core.ErrInvalidConfig, Name)
	}
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	owned := space.Clone()
	chunks := core.Chunks(owned.Len(), opts.Threads)
	e := &Engine{
		space:  owned,
		rates:  cfg.Rates(),
		base:   prng.FromSeed(cfg.Seed),
		opts:   opts,
		chunks: chunks,
		local:  make([]core.Marks, len(chunks)),
		tally:  core.Census(owned.Cells()),
		log:    opts.Logger.With("engine", Name, "threads", opts.Threads),
	}
	e.life.Observe(e.tally.I)
	return e, nil
}

// Name returns the engine identifier.
func (e *Engine) Name() string { return Name }

// Threads returns the task concurrency limit.
func (e *Engine) Threads() int { return e.opts.Threads }

// Step launches one task per chunk, awaits them all and applies the merged
// marks in chunk order.
func (e *Engine) Step(tick int) (core.StepStats, error) {
	if err := e.life.CanStep(); err != nil {
		return core.StepStats{}, err
	}
	start := time.Now()

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(e.opts.Threads)
	futures := make([]*Future[*core.Marks], len(e.chunks))
	for i, span := range e.chunks {
		rng := e.base.Split()
		marks := &e.local[i]
		marks.Reset()
		futures[i] = Async(g, func() (*core.Marks, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			err := core.Guard(Name, span.Lo, span.Hi, func() {
				core.Decide(e.space, span.Lo, span.Hi, e.rates, rng, marks)
			})
			return marks, err
		})
	}
	if err := g.Wait(); err != nil {
		err = fmt.Errorf("%s: tick %d: %w", Name, tick, err)
		// Nothing was applied: marks are merged only after every future resolves.
		e.life.Fail(err)
		e.log.Error("Tick failed.", "error", err)
		return core.StepStats{}, err
	}

	e.marks.Reset()
	for _, f := range futures {
		m, _ := f.Await()
		e.marks.Append(m)
	}
	infected, recovered := core.Apply(e.space.Cells(), &e.marks)

	e.tally = e.tally.Advance(infected, recovered)
	e.life.Observe(e.tally.I)
	return e.tally.Stats(tick, infected, recovered, time.Since(start)), nil
}

// IsFinished reports whether no cell is Infected.
func (e *Engine) IsFinished() bool { return e.tally.I == 0 }

// CurrentState returns a snapshot of the cells.
func (e *Engine) CurrentState() []core.Cell { return core.Snapshot(e.space.Cells()) }

// Shutdown is idempotent; tasks never outlive a Step.
func (e *Engine) Shutdown() error {
	if e.life.BeginShutdown() {
		e.log.Debug("Engine shut down.")
	}
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
