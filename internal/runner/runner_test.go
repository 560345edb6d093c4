package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sirsim/internal/core"
	"sirsim/internal/ctxlog"
	"sirsim/internal/engines/sequential"
	"sirsim/internal/logging"
)

func quietCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
}

func newEngine(t *testing.T, cfg core.Configuration) core.Engine {
	t.Helper()
	g, err := core.BuildGrid(cfg)
	require.NoError(t, err)
	e, err := sequential.New(g, cfg, core.Options{})
	require.NoError(t, err)
	return e
}

func TestRunToExtinction(t *testing.T) {
	cfg := core.Configuration{Width: 20, Height: 20, InitialInfected: 4, InfectionProbability: 0.3, RecoveryProbability: 0.2}.WithSeed(4)
	e := newEngine(t, cfg)

	var recorded []core.StepStats
	sink := SinkFunc(func(st core.StepStats) error {
		recorded = append(recorded, st)
		return nil
	})
	stats, err := Run(quietCtx(), e, Options{Generation: "gen1", RunNumber: 2, Config: cfg}, sink)
	require.NoError(t, err)

	require.Equal(t, "sequential", stats.Engine)
	require.Equal(t, "gen1", stats.Generation)
	require.Equal(t, 2, stats.RunNumber)
	require.Equal(t, len(recorded), stats.Ticks)
	require.False(t, stats.Truncated)
	require.Zero(t, stats.Final.I)
	require.Equal(t, 400, stats.Final.Total())
	for i, st := range recorded {
		require.Equal(t, i+1, st.Tick)
	}

	_, err = e.Step(stats.Ticks + 1)
	require.ErrorIs(t, err, core.ErrShutDown, "runner must shut the engine down")
}

func TestRunTruncatesAtMaxTicks(t *testing.T) {
	cfg := core.Configuration{Width: 5, Height: 5, InitialInfected: 1, InfectionProbability: 1, RecoveryProbability: 0}.WithSeed(1)
	stats, err := Run(quietCtx(), newEngine(t, cfg), Options{MaxTicks: 12})
	require.NoError(t, err)
	require.True(t, stats.Truncated)
	require.Equal(t, 12, stats.Ticks)
	require.Equal(t, 25, stats.Final.I)
}

func TestRunSinkError(t *testing.T) {
	cfg := core.DefaultConfiguration().WithSeed(2)
	e := newEngine(t, cfg)
	boom := errors.New("disk full")
	_, err := Run(quietCtx(), e, Options{}, SinkFunc(func(core.StepStats) error { return boom }))
	require.ErrorIs(t, err, boom)

	_, err = e.Step(2)
	require.ErrorIs(t, err, core.ErrShutDown)
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(quietCtx())
	cancel()
	stats, err := Run(ctx, newEngine(t, core.DefaultConfiguration().WithSeed(3)), Options{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, stats.Ticks)
}

type stubborn struct {
	core.Engine
}

func (stubborn) Shutdown() error { return core.ErrShutdownTimeout }

func TestRunJoinsShutdownError(t *testing.T) {
	cfg := core.Configuration{Width: 3, Height: 3, InitialInfected: 1, InfectionProbability: 0, RecoveryProbability: 1}.WithSeed(1)
	stats, err := Run(quietCtx(), stubborn{newEngine(t, cfg)}, Options{})
	require.ErrorIs(t, err, core.ErrShutdownTimeout)
	require.Equal(t, 1, stats.Ticks)
}

// failsAt steps the wrapped engine normally but reports tick fail as failed,
// optionally keeping the stats of the writes it committed.
type failsAt struct {
	core.Engine
	fail    int
	partial bool
}

func (f failsAt) Step(tick int) (core.StepStats, error) {
	st, err := f.Engine.Step(tick)
	if err != nil || tick != f.fail {
		return st, err
	}
	err = &core.TaskError{Engine: "wrapped", Lo: 0, Hi: 1, Cause: errors.New("corrupt adjacency")}
	if !f.partial {
		st = core.StepStats{}
	}
	return st, err
}

func TestRunStopsOnTaskFailure(t *testing.T) {
	cfg := core.Configuration{Width: 6, Height: 6, InitialInfected: 2, InfectionProbability: 1, RecoveryProbability: 0}.WithSeed(5)

	for _, partial := range []bool{true, false} {
		var recorded []core.StepStats
		sink := SinkFunc(func(st core.StepStats) error {
			recorded = append(recorded, st)
			return nil
		})
		stats, err := Run(quietCtx(), failsAt{Engine: newEngine(t, cfg), fail: 2, partial: partial}, Options{}, sink)
		require.ErrorIs(t, err, core.ErrTaskFailed)

		want := 1
		if partial {
			want = 2
		}
		require.Len(t, recorded, want, "partial=%v", partial)
		require.Equal(t, want, stats.Ticks)
		last := recorded[len(recorded)-1]
		require.Equal(t, core.Tally{S: last.TotalSusceptible, I: last.TotalInfected, R: last.TotalRecovered}, stats.Final)
	}
}

func TestRunReportsProgress(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), logging.NewLogger("trace", "text", &buf))
	cfg := core.Configuration{Width: 4, Height: 4, InitialInfected: 1, InfectionProbability: 1, RecoveryProbability: 0}.WithSeed(1)

	_, err := Run(ctx, newEngine(t, cfg), Options{MaxTicks: 3, Progress: time.Nanosecond})
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, "Progress.")
	require.Contains(t, out, "level=TRACE")
	require.Contains(t, out, "Run truncated before extinction.")
}

func TestAccumulate(t *testing.T) {
	var s RunStats
	for _, d := range []time.Duration{3, 1, 8} {
		s.Accumulate(core.StepStats{StepDuration: d, TotalSusceptible: 1})
	}
	require.Equal(t, 3, s.Ticks)
	require.Equal(t, time.Duration(12), s.TotalTime)
	require.Equal(t, time.Duration(4), s.AvgStep)
	require.Equal(t, time.Duration(8), s.MaxStep)
	require.Equal(t, time.Duration(1), s.MinStep)
	require.Equal(t, core.Tally{S: 1}, s.Final)
}
