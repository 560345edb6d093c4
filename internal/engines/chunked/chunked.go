// Package chunked steps the epidemic on a fixed worker pool. The cell range
// is cut into one contiguous chunk per worker; chunks decide in parallel
// into private buffers and the merged decisions are applied on the caller's
// goroutine after every chunk of the tick has reported.
package chunked

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sirsim/internal/core"
	prng "sirsim/pkg/core"
)

// Name is the registry key of this engine.
const Name = "chunked"

// Engine is the chunked worker-pool implementation.
type Engine struct {
	space  core.Space
	rates  core.Rates
	base   *prng.RNG
	opts   core.Options
	chunks []core.Span
	local  []core.Marks
	errs   []error
	marks  core.Marks
	tally  core.Tally
	life   core.Lifecycle
	pool   *pool
	log    *slog.Logger
}

// New starts opts.Threads workers over a deep copy of space.
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
		errs:   make([]error, len(chunks)),
		tally:  core.Census(owned.Cells()),
		pool:   newPool(opts.Threads, len(chunks)),
		log:    opts.Logger.With("engine", Name, "threads", opts.Threads),
	}
	e.life.Observe(e.tally.I)
	e.log.Debug("Worker pool started.", "chunks", len(chunks))
	return e, nil
}

// Name returns the engine identifier.
func (e *Engine) Name() string { return Name }

// Threads returns the worker count.
func (e *Engine) Threads() int { return e.opts.Threads }

// Step fans the decision phase out to the pool, waits for every chunk and
// applies the merged marks.
func (e *Engine) Step(tick int) (core.StepStats, error) {
	if err := e.life.CanStep(); err != nil {
		return core.StepStats{}, err
	}
	start := time.Now()

	var barrier sync.WaitGroup
	for i, span := range e.chunks {
		rng := e.base.Split()
		e.local[i].Reset()
		e.errs[i] = nil
		barrier.Add(1)
		err := e.pool.submit(task{
			run: func() {
				e.errs[i] = core.Guard(Name, span.Lo, span.Hi, func() {
					core.Decide(e.space, span.Lo, span.Hi, e.rates, rng, &e.local[i])
				})
			},
			done: &barrier,
		})
		if err != nil {
			barrier.Done()
			barrier.Wait()
			return core.StepStats{}, e.fail(fmt.Errorf("%s: tick %d: chunk [%d,%d): %w", Name, tick, span.Lo, span.Hi, err))
		}
	}
	barrier.Wait()
	if err := errors.Join(e.errs...); err != nil {
		return core.StepStats{}, e.fail(fmt.Errorf("%s: tick %d: %w", Name, tick, err))
	}

	e.marks.Reset()
	for i := range e.local {
		e.marks.Append(&e.local[i])
	}
	infected, recovered := core.Apply(e.space.Cells(), &e.marks)

	e.tally = e.tally.Advance(infected, recovered)
	e.life.Observe(e.tally.I)
	return e.tally.Stats(tick, infected, recovered, time.Since(start)), nil
}

// fail ends the run. Decisions are applied only after every chunk reports,
// so a failed tick leaves the cells untouched.
func (e *Engine) fail(err error) error {
	e.life.Fail(err)
	e.log.Error("Tick failed.", "error", err)
	return err
}

// IsFinished reports whether no cell is Infected.
func (e *Engine) IsFinished() bool { return e.tally.I == 0 }

// CurrentState returns a snapshot of the cells.
func (e *Engine) CurrentState() []core.Cell { return core.Snapshot(e.space.Cells()) }

// Shutdown drains the pool within the grace period, forcing termination
// when it is exceeded. Later calls are no-ops.
func (e *Engine) Shutdown() error {
	if !e.life.BeginShutdown() {
		return nil
	}
	forced, drained := e.pool.shutdown(e.opts.ShutdownGrace)
	if !forced {
		e.log.Debug("Worker pool drained.")
		return nil
	}
	e.log.Warn("Worker pool did not drain within grace period; forced termination.",
		"grace", e.opts.ShutdownGrace, "drained", drained)
	return fmt.Errorf("%s: %w", Name, core.ErrShutdownTimeout)
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
