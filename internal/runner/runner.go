// Package runner drives an engine from its initial state to extinction,
// fanning each tick's statistics out to sinks and summarising the run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sirsim/internal/core"
	"sirsim/internal/ctxlog"
	"sirsim/internal/logging"
)

// Sink consumes the statistics of every tick.
type Sink interface {
	Record(core.StepStats) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(core.StepStats) error

// Record calls f.
func (f SinkFunc) Record(st core.StepStats) error { return f(st) }

// Options control one run.
type Options struct {
	// MaxTicks truncates a run that has not finished. Zero is unlimited,
	// which never terminates when the recovery probability is zero.
	MaxTicks int
	// Progress is the minimum interval between progress reports.
	Progress time.Duration
	// Generation and RunNumber label the summary.
	Generation string
	RunNumber  int
	Config     core.Configuration
}

// RunStats summarises one engine run.
type RunStats struct {
	Generation string             `json:"generation" yaml:"generation"`
	Engine     string             `json:"engine" yaml:"engine"`
	RunNumber  int                `json:"run_number" yaml:"run_number"`
	Ticks      int                `json:"ticks" yaml:"ticks"`
	TotalTime  time.Duration      `json:"total_time" yaml:"total_time"`
	AvgStep    time.Duration      `json:"avg_step" yaml:"avg_step"`
	MaxStep    time.Duration      `json:"max_step" yaml:"max_step"`
	MinStep    time.Duration      `json:"min_step" yaml:"min_step"`
	Final      core.Tally         `json:"final" yaml:"final"`
	Config     core.Configuration `json:"config" yaml:"config"`
	// Truncated is set when MaxTicks stopped the run before extinction.
	Truncated bool `json:"truncated" yaml:"truncated"`
}

// Accumulate folds one tick into the timing summary.
func (s *RunStats) Accumulate(st core.StepStats) {
	d := st.StepDuration
	if s.Ticks == 0 || d < s.MinStep {
		s.MinStep = d
	}
	if d > s.MaxStep {
		s.MaxStep = d
	}
	s.Ticks++
	s.TotalTime += d
	s.AvgStep = s.TotalTime / time.Duration(s.Ticks)
	s.Final = core.Tally{S: st.TotalSusceptible, I: st.TotalInfected, R: st.TotalRecovered}
}

// Run steps e from tick 1 until it finishes, ctx is cancelled between ticks
// or opts.MaxTicks is reached. The engine is always shut down; its error is
// joined with any run error.
func Run(ctx context.Context, e core.Engine, opts Options, sinks ...Sink) (stats RunStats, err error) {
	log := ctxlog.FromContext(ctx).With("engine", e.Name(), "run", opts.RunNumber)
	defer func() {
		if serr := e.Shutdown(); serr != nil {
			err = errors.Join(err, serr)
		}
	}()

	stats = RunStats{
		Generation: opts.Generation,
		Engine:     e.Name(),
		RunNumber:  opts.RunNumber,
		Config:     opts.Config,
		Final:      core.Census(e.CurrentState()),
	}
	progress := core.NewThrottle(opts.Progress)
	progress.Ready()

	for tick := 1; !e.IsFinished(); tick++ {
		if opts.MaxTicks > 0 && tick > opts.MaxTicks {
			stats.Truncated = true
			log.Warn("Run truncated before extinction.", "max_ticks", opts.MaxTicks, "infected", stats.Final.I)
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		st, err := e.Step(tick)
		if err != nil {
			// A failed tick may still have committed writes; report them.
			if st.Tick == tick {
				stats.Accumulate(st)
				err = errors.Join(err, record(sinks, st))
			}
			return stats, err
		}
		stats.Accumulate(st)
		log.Log(ctx, logging.LevelTrace, "Step.", "tick", st.Tick,
			"new_infected", st.NewlyInfected, "new_recovered", st.NewlyRecovered,
			"S", st.TotalSusceptible, "I", st.TotalInfected, "R", st.TotalRecovered,
			"step", st.StepDuration)

		if err := record(sinks, st); err != nil {
			return stats, err
		}

		if progress.Ready() {
			log.Info("Progress.", "tick", st.Tick, "infected", st.TotalInfected, "recovered", st.TotalRecovered)
		}
	}

	log.Info("Run complete.", "ticks", stats.Ticks, "total", stats.TotalTime, "avg_step", stats.AvgStep, "truncated", stats.Truncated)
	return stats, nil
}

func record(sinks []Sink, st core.StepStats) error {
	for _, s := range sinks {
		if err := s.Record(st); err != nil {
			return fmt.Errorf("recording tick %d: %w", st.Tick, err)
		}
	}
	return nil
}
