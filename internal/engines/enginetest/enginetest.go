// Package enginetest holds the conformance suite every stepping engine must
// pass. Engine packages call Run from their own tests.
package enginetest

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"sirsim/internal/core"
)

// Suite describes the engine under test.
type Suite struct {
	New  core.Factory
	Opts core.Options
	// Parallel engines must turn a panicking task into a *core.TaskError.
	Parallel bool
}

// Quiet returns options with a discarding logger.
func Quiet(opts core.Options) core.Options {
	opts.Logger = slog.New(slog.DiscardHandler)
	return opts
}

// Run executes every conformance check as a subtest.
func Run(t *testing.T, s Suite) {
	t.Run("Conservation", s.testConservation)
	t.Run("Monotonicity", s.testMonotonicity)
	t.Run("FinishedSignalling", s.testFinishedSignalling)
	t.Run("Determinism", s.testDeterminism)
	t.Run("FullGridByTickTwo", s.testFullGrid)
	t.Run("ZeroInfection", s.testZeroInfection)
	t.Run("Lifecycle", s.testLifecycle)
	t.Run("SnapshotDetached", s.testSnapshotDetached)
	t.Run("OwnsItsCopy", s.testOwnsCopy)
	t.Run("RejectsInvalidConfig", s.testInvalidConfig)
	t.Run("ContactGraph", s.testContactGraph)
	if s.Parallel {
		t.Run("TaskFault", s.testTaskFault)
		t.Run("StepAfterFault", s.testStepAfterFault)
	}
}

// Epidemic is a mid-sized reproducible configuration.
func Epidemic(seed int64) core.Configuration {
	return core.Configuration{
		Width:                24,
		Height:               17,
		InitialInfected:      6,
		InfectionProbability: 0.3,
		RecoveryProbability:  0.15,
	}.WithSeed(seed)
}

// Build constructs an engine for cfg on a freshly built grid and registers
// its shutdown as test cleanup.
func (s Suite) Build(t testing.TB, cfg core.Configuration) core.Engine {
	t.Helper()
	g, err := core.BuildGrid(cfg)
	require.NoError(t, err)
	return s.build(t, g, cfg)
}

func (s Suite) build(t testing.TB, space core.Space, cfg core.Configuration) core.Engine {
	t.Helper()
	e, err := s.New(space, cfg, Quiet(s.Opts))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

// Trajectory steps e until it finishes or limit ticks have run.
func Trajectory(t testing.TB, e core.Engine, limit int) []core.StepStats {
	t.Helper()
	var out []core.StepStats
	for tick := 1; tick <= limit && !e.IsFinished(); tick++ {
		st, err := e.Step(tick)
		require.NoError(t, err)
		out = append(out, st)
	}
	return out
}

func (s Suite) testConservation(t *testing.T) {
	cfg := Epidemic(5)
	e := s.Build(t, cfg)
	for _, st := range Trajectory(t, e, 400) {
		if st.Total() != cfg.CellCount() {
			t.Fatalf("tick %d: S+I+R=%d, expected %d", st.Tick, st.Total(), cfg.CellCount())
		}
	}
}

func (s Suite) testMonotonicity(t *testing.T) {
	e := s.Build(t, Epidemic(6))
	prev := e.CurrentState()
	lastR := 0
	for tick := 1; tick <= 400 && !e.IsFinished(); tick++ {
		st, err := e.Step(tick)
		require.NoError(t, err)
		if st.TotalRecovered < lastR {
			t.Fatalf("tick %d: recovered fell from %d to %d", tick, lastR, st.TotalRecovered)
		}
		lastR = st.TotalRecovered

		cur := e.CurrentState()
		for i := range cur {
			was, now := prev[i].State, cur[i].State
			if was == core.Recovered && now != core.Recovered ||
				was == core.Infected && now == core.Susceptible {
				t.Fatalf("tick %d: cell %d regressed %s -> %s", tick, i, was, now)
			}
		}
		prev = cur
	}
}

func (s Suite) testFinishedSignalling(t *testing.T) {
	e := s.Build(t, Epidemic(7))
	for tick := 1; tick <= 400; tick++ {
		infected := core.Census(e.CurrentState()).I
		require.Equal(t, infected == 0, e.IsFinished(), "tick %d", tick)
		if e.IsFinished() {
			break
		}
		_, err := e.Step(tick)
		require.NoError(t, err)
	}
	require.True(t, e.IsFinished(), "epidemic should burn out within 400 ticks")

	_, err := e.Step(401)
	require.ErrorIs(t, err, core.ErrFinished)
	require.True(t, e.IsFinished())
}

func (s Suite) testDeterminism(t *testing.T) {
	cfg := Epidemic(11)
	a, b := s.Build(t, cfg), s.Build(t, cfg)

	ta, tb := Trajectory(t, a, 400), Trajectory(t, b, 400)
	ignore := cmpopts.IgnoreFields(core.StepStats{}, "StepDuration")
	if diff := cmp.Diff(ta, tb, ignore); diff != "" {
		t.Fatalf("identical runs diverged (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(a.CurrentState(), b.CurrentState()); diff != "" {
		t.Fatalf("final states diverged (-a +b):\n%s", diff)
	}
}

func (s Suite) testFullGrid(t *testing.T) {
	g, err := core.NewGrid(3, 3)
	require.NoError(t, err)
	g.At(1, 1).State = core.Infected
	cfg := core.Configuration{Width: 3, Height: 3, InitialInfected: 1, InfectionProbability: 1, RecoveryProbability: 0}.WithSeed(1)
	e := s.build(t, g, cfg)

	first, err := e.Step(1)
	require.NoError(t, err)
	require.Equal(t, 4, first.NewlyInfected)
	require.Equal(t, 5, first.TotalInfected)

	second, err := e.Step(2)
	require.NoError(t, err)
	require.Equal(t, 4, second.NewlyInfected)
	require.Equal(t, 9, second.TotalInfected)
	require.Zero(t, second.TotalSusceptible)

	for tick := 3; tick <= 10; tick++ {
		st, err := e.Step(tick)
		require.NoError(t, err)
		require.Equal(t, 9, st.TotalInfected)
		require.False(t, e.IsFinished())
	}
}

func (s Suite) testZeroInfection(t *testing.T) {
	cfg := core.Configuration{Width: 6, Height: 5, InitialInfected: 4, InfectionProbability: 0, RecoveryProbability: 1}.WithSeed(3)
	e := s.Build(t, cfg)

	st, err := e.Step(1)
	require.NoError(t, err)
	require.True(t, e.IsFinished())
	require.Equal(t, cfg.InitialInfected, st.TotalRecovered)
	require.Equal(t, cfg.InitialInfected, st.NewlyRecovered)
	require.Zero(t, st.NewlyInfected)
}

func (s Suite) testLifecycle(t *testing.T) {
	e := s.Build(t, Epidemic(12))
	_, err := e.Step(1)
	require.NoError(t, err)

	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown())

	_, err = e.Step(2)
	require.ErrorIs(t, err, core.ErrShutDown)
}

func (s Suite) testSnapshotDetached(t *testing.T) {
	e := s.Build(t, Epidemic(13))
	snap := e.CurrentState()
	for i := range snap {
		snap[i].State = core.Recovered
	}
	require.False(t, e.IsFinished())
	require.Equal(t, 6, core.Census(e.CurrentState()).I)
}

func (s Suite) testOwnsCopy(t *testing.T) {
	cfg := Epidemic(14)
	g, err := core.BuildGrid(cfg)
	require.NoError(t, err)
	before := core.Snapshot(g.Cells())

	e := s.build(t, g, cfg)
	Trajectory(t, e, 50)
	require.Equal(t, before, g.Cells(), "engine mutated the caller's grid")
}

func (s Suite) testInvalidConfig(t *testing.T) {
	g, err := core.NewGrid(2, 2)
	require.NoError(t, err)

	bad := core.DefaultConfiguration()
	bad.RecoveryProbability = 2
	_, err = s.New(g, bad, Quiet(s.Opts))
	require.ErrorIs(t, err, core.ErrInvalidConfig)

	opts := s.Opts
	opts.Threads = -2
	_, err = s.New(g, core.DefaultConfiguration(), Quiet(opts))
	require.ErrorIs(t, err, core.ErrInvalidConfig)
}

func (s Suite) testContactGraph(t *testing.T) {
	// A path 0-1-2-3 plus an isolated pair 4-5.
	g, err := core.NewContactGraph(nil, []core.Edge{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 3}, {From: 4, To: 5}})
	require.NoError(t, err)
	g.Cells()[0].State = core.Infected
	cfg := core.Configuration{InfectionProbability: 1, RecoveryProbability: 0}.WithSeed(2)
	e := s.build(t, g, cfg)

	for tick := 1; tick <= 3; tick++ {
		st, err := e.Step(tick)
		require.NoError(t, err)
		require.Equal(t, 1, st.NewlyInfected, "tick %d", tick)
	}
	got := core.Census(e.CurrentState())
	require.Equal(t, core.Tally{S: 2, I: 4}, got)
}

// faultySpace panics when the neighbours of one cell are requested. With a
// non-nil fired flag it panics only the first time.
type faultySpace struct {
	*core.Grid
	bad   int
	fired *atomic.Bool
}

// Faulty wraps g so that asking for the neighbours of cell bad panics. A
// fault that fires once leaves the space healthy afterwards, including in
// clones.
func Faulty(g *core.Grid, bad int, once bool) core.Space {
	f := faultySpace{Grid: g, bad: bad}
	if once {
		f.fired = new(atomic.Bool)
	}
	return f
}

func (f faultySpace) Neighbors(i int, dst []int) []int {
	if i == f.bad && (f.fired == nil || f.fired.CompareAndSwap(false, true)) {
		panic(errors.New("corrupt adjacency"))
	}
	return f.Grid.Neighbors(i, dst)
}

func (f faultySpace) Clone() core.Space {
	return faultySpace{Grid: f.Grid.Copy(), bad: f.bad, fired: f.fired}
}

func (s Suite) testTaskFault(t *testing.T) {
	g, err := core.NewGrid(8, 8)
	require.NoError(t, err)
	g.At(5, 6).State = core.Infected
	cfg := core.DefaultConfiguration().WithSeed(1)

	e := s.build(t, Faulty(g, g.Index(5, 6), false), cfg)
	_, err = e.Step(1)
	require.ErrorIs(t, err, core.ErrTaskFailed)

	var te *core.TaskError
	require.ErrorAs(t, err, &te)
	require.Equal(t, e.Name(), te.Engine)
	require.LessOrEqual(t, te.Lo, g.Index(5, 6))
	require.Greater(t, te.Hi, g.Index(5, 6))

	require.NoError(t, e.Shutdown())
}

func (s Suite) testStepAfterFault(t *testing.T) {
	g, err := core.NewGrid(8, 8)
	require.NoError(t, err)
	g.At(5, 6).State = core.Infected
	g.At(1, 1).State = core.Infected
	before := core.Census(g.Cells())
	cfg := core.Configuration{Width: 8, Height: 8, InitialInfected: 2, InfectionProbability: 1, RecoveryProbability: 0}.WithSeed(1)

	e := s.build(t, Faulty(g, g.Index(5, 6), true), cfg)
	st, err := e.Step(1)
	require.ErrorIs(t, err, core.ErrTaskFailed)

	// Whatever the failed tick committed must be in its stats.
	want := before
	if st.Tick == 1 {
		want = before.Advance(st.NewlyInfected, st.NewlyRecovered)
		require.Equal(t, core.Tally{S: st.TotalSusceptible, I: st.TotalInfected, R: st.TotalRecovered}, want)
	}
	require.Equal(t, want, core.Census(e.CurrentState()))

	// The fault is gone, but the run is over.
	_, err = e.Step(2)
	require.ErrorIs(t, err, core.ErrFailed)
	require.ErrorIs(t, err, core.ErrTaskFailed)
	require.Equal(t, want, core.Census(e.CurrentState()))

	require.NoError(t, e.Shutdown())
	_, err = e.Step(3)
	require.ErrorIs(t, err, core.ErrShutDown)
}
