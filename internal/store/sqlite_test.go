package store

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sirsim/internal/core"
	"sirsim/internal/runner"
)

func sample(engine string, run, ticks int) runner.RunStats {
	return runner.RunStats{
		Generation: "gen1",
		Engine:     engine,
		RunNumber:  run,
		Ticks:      ticks,
		TotalTime:  time.Duration(ticks) * time.Millisecond,
		AvgStep:    time.Millisecond,
		MaxStep:    2 * time.Millisecond,
		MinStep:    time.Duration(run) * time.Microsecond,
		Final:      core.Tally{S: 90, R: 10},
		Config:     core.DefaultConfiguration().WithSeed(int64(run)),
	}
}

func TestSaveAndList(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "db", "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	want := []runner.RunStats{sample("chunked", 1, 40), sample("forkjoin", 1, 42), sample("chunked", 2, 38)}
	want[2].Truncated = true
	want[2].Config.Seed = nil
	for _, rs := range want {
		require.NoError(t, s.Save(ctx, rs))
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, want, all)

	chunked, err := s.List(ctx, Filter{Engine: "chunked"})
	require.NoError(t, err)
	require.Len(t, chunked, 2)

	limited, err := s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, want[:1], limited)

	none, err := s.List(ctx, Filter{Generation: "gen2"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestSummaries(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	for i, ticks := range []int{10, 20, 30} {
		require.NoError(t, s.Save(ctx, sample("sequential", i+1, ticks)))
	}
	require.NoError(t, s.Save(ctx, sample("future", 1, 25)))

	// Runs cut off at max-ticks count as runs but say nothing about the
	// extinction tick.
	capped := sample("sequential", 4, 1000)
	capped.Truncated = true
	require.NoError(t, s.Save(ctx, capped))
	stuck := sample("chunked", 1, 500)
	stuck.Truncated = true
	require.NoError(t, s.Save(ctx, stuck))

	sums, err := s.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 3)

	require.Equal(t, "chunked", sums[0].Engine)
	require.Equal(t, 1, sums[0].Truncated)
	require.Zero(t, sums[0].MeanTicks)
	require.Equal(t, time.Millisecond, sums[0].MeanStep)

	require.Equal(t, "future", sums[1].Engine)
	require.Equal(t, 1, sums[1].Runs)
	require.InDelta(t, 25, sums[1].MeanTicks, 1e-9)
	require.Zero(t, sums[1].StdTicks)

	seq := sums[2]
	require.Equal(t, "sequential", seq.Engine)
	require.Equal(t, 4, seq.Runs)
	require.Equal(t, 1, seq.Truncated)
	require.InDelta(t, 20, seq.MeanTicks, 1e-9)
	require.InDelta(t, 10, seq.StdTicks, 1e-9)
	require.Equal(t, time.Millisecond, seq.MeanStep)
	require.Equal(t, time.Microsecond, seq.MinStep)
	require.Equal(t, 2*time.Millisecond, seq.MaxStep)
	require.False(t, math.IsNaN(seq.StdTicks))
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sample("sequential", 1, 5)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestInitSchemaRejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	require.NoError(t, InitSchema(ctx, db))
	require.NoError(t, InitSchema(ctx, db), "second init is a no-op")

	_, err = db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion+1)
	require.NoError(t, err)
	require.Error(t, InitSchema(ctx, db))
}
