// Package forkjoin steps the epidemic by recursive halving of the cell
// range. Halves are forked onto new goroutines while fork slots are free
// and the Go scheduler steals them across processors; results are joined
// with StepResult.Merge.
//
// Unlike the buffered engines, a leaf commits neighbour infections
// immediately. Each cell is a single atomic word and a compare-and-swap from
// Susceptible guards the write, so two leaves racing for the same neighbour
// count one infection. Writes are stamped with the tick, and every decision
// reads the tick-entry state, so a cell infected this tick neither spreads
// nor recovers until the next one and the outcome does not depend on leaf
// scheduling.
package forkjoin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"sirsim/internal/core"
	prng "sirsim/pkg/core"
)

// Name is the registry key of this engine.
const Name = "forkjoin"

// Engine is the fork-join implementation.
type Engine struct {
	space  core.Space
	states []atomic.Uint32
	rates  core.Rates
	base   *prng.RNG
	opts   core.Options
	forks  *semaphore.Weighted
	slots  int64
	gen    uint32
	tally  core.Tally
	life   core.Lifecycle
	log    *slog.Logger
}

// New returns an engine over a deep copy of space. At most opts.Threads
// goroutines (the caller plus Threads-1 forks) work on a tick.
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
	cells := owned.Cells()
	e := &Engine{
		space:  owned,
		states: make([]atomic.Uint32, len(cells)),
		rates:  cfg.Rates(),
		base:   prng.FromSeed(cfg.Seed),
		opts:   opts,
		slots:  int64(opts.Threads - 1),
		tally:  core.Census(cells),
		log:    opts.Logger.With("engine", Name, "threads", opts.Threads, "leaf", opts.LeafThreshold),
	}
	e.forks = semaphore.NewWeighted(e.slots)
	for i := range cells {
		e.states[i].Store(pack(cells[i].State, 0))
	}
	e.life.Observe(e.tally.I)
	return e, nil
}

// Name returns the engine identifier.
func (e *Engine) Name() string { return Name }

// Threads returns the parallelism budget.
func (e *Engine) Threads() int { return e.opts.Threads }

// Step runs the recursive task over the whole range.
func (e *Engine) Step(tick int) (core.StepStats, error) {
	if err := e.life.CanStep(); err != nil {
		return core.StepStats{}, err
	}
	start := time.Now()

	if e.gen == maxStamp {
		e.rebase()
	}
	e.gen++
	res, err := e.compute(0, len(e.states), e.base.Split())
	if err != nil {
		err = fmt.Errorf("%s: tick %d: %w", Name, tick, err)
		e.life.Fail(err)
		st := e.salvage(tick, start)
		e.log.Error("Tick failed.", "error", err, "new_infected", st.NewlyInfected, "new_recovered", st.NewlyRecovered)
		return st, err
	}

	e.tally = core.Tally{S: res.S, I: res.I, R: res.R}.Advance(res.Infected, res.Recovered)
	e.life.Observe(e.tally.I)
	return e.tally.Stats(tick, res.Infected, res.Recovered, time.Since(start)), nil
}

// compute processes [lo, hi). Each half gets its own split stream, taken
// before any fork so the stream tree depends only on the range.
func (e *Engine) compute(lo, hi int, rng *prng.RNG) (StepResult, error) {
	if hi-lo <= e.opts.LeafThreshold {
		var res StepResult
		err := core.Guard(Name, lo, hi, func() { res = e.leaf(lo, hi, rng) })
		return res, err
	}

	mid := lo + (hi-lo)/2
	leftRNG, rightRNG := rng.Split(), rng.Split()

	if !e.forks.TryAcquire(1) {
		left, leftErr := e.compute(lo, mid, leftRNG)
		right, rightErr := e.compute(mid, hi, rightRNG)
		return left.Merge(right), errors.Join(leftErr, rightErr)
	}

	var (
		left    StepResult
		leftErr error
	)
	joined := make(chan struct{})
	go func() {
		defer close(joined)
		defer e.forks.Release(1)
		left, leftErr = e.compute(lo, mid, leftRNG)
	}()
	right, rightErr := e.compute(mid, hi, rightRNG)
	<-joined
	return left.Merge(right), errors.Join(leftErr, rightErr)
}

func (e *Engine) leaf(lo, hi int, rng *prng.RNG) StepResult {
	var res StepResult
	gen := e.gen
	nbuf := make([]int, 0, 8)
	for idx := lo; idx < hi; idx++ {
		switch entryState(e.states[idx].Load(), gen) {
		case core.Susceptible:
			res.S++
			continue
		case core.Recovered:
			res.R++
			continue
		}
		res.I++

		nbuf = e.space.Neighbors(idx, nbuf[:0])
		for _, n := range nbuf {
			observed := e.states[n].Load()
			if entryState(observed, gen) != core.Susceptible {
				continue
			}
			if rng.Float64() < e.rates.Infection && e.infect(n, observed, gen) {
				res.Infected++
			}
		}
		if rng.Float64() < e.rates.Recovery {
			e.states[idx].Store(pack(core.Recovered, gen))
			res.Recovered++
		}
	}
	return res
}

// infect is the per-cell exclusive-write guard: only the writer whose
// compare-and-swap moves the cell off Susceptible counts the infection.
func (e *Engine) infect(n int, observed, gen uint32) bool {
	if s, _ := unpack(observed); s != core.Susceptible {
		return false
	}
	return e.states[n].CompareAndSwap(observed, pack(core.Infected, gen))
}

// salvage accounts for the writes other leaves committed during a failed
// tick. Cells stamped with the current generation changed in this tick.
func (e *Engine) salvage(tick int, start time.Time) core.StepStats {
	var (
		t                   core.Tally
		infected, recovered int
	)
	for i := range e.states {
		s, stamp := unpack(e.states[i].Load())
		switch s {
		case core.Susceptible:
			t.S++
		case core.Infected:
			t.I++
			if stamp == e.gen {
				infected++
			}
		case core.Recovered:
			t.R++
			if stamp == e.gen {
				recovered++
			}
		}
	}
	e.tally = t
	return t.Stats(tick, infected, recovered, time.Since(start))
}

// rebase resets every stamp to zero before the stamp space wraps.
func (e *Engine) rebase() {
	for i := range e.states {
		s, _ := unpack(e.states[i].Load())
		e.states[i].Store(pack(s, 0))
	}
	e.gen = 0
}

// IsFinished reports whether no cell is Infected.
func (e *Engine) IsFinished() bool { return e.tally.I == 0 }

// CurrentState returns a snapshot of the cells.
func (e *Engine) CurrentState() []core.Cell {
	out := core.Snapshot(e.space.Cells())
	for i := range out {
		out[i].State, _ = unpack(e.states[i].Load())
	}
	return out
}

// Shutdown waits, within the grace period, until no forked task holds a
// slot. Later calls are no-ops.
func (e *Engine) Shutdown() error {
	if !e.life.BeginShutdown() || e.slots == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.ShutdownGrace)
	defer cancel()
	if err := e.forks.Acquire(ctx, e.slots); err != nil {
		e.log.Warn("Forked tasks still running after grace period.", "grace", e.opts.ShutdownGrace)
		return fmt.Errorf("%s: %w", Name, core.ErrShutdownTimeout)
	}
	e.forks.Release(e.slots)
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
