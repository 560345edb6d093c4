package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"sirsim/internal/core"
)

func TestNewGenerationNumbering(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "gen7"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(base, "gen12x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "gen40"), nil, 0o644))

	cfg := core.DefaultConfiguration().WithSeed(5)
	m, err := NewGeneration(base, cfg)
	require.NoError(t, err)
	require.Equal(t, "gen8", m.Generation())
	require.Equal(t, filepath.Join(base, "gen8"), m.Dir())

	back, err := loadConfig(filepath.Join(m.Dir(), configFile))
	require.NoError(t, err)
	require.Equal(t, cfg, back)

	next, err := NewGeneration(base, cfg)
	require.NoError(t, err)
	require.Equal(t, "gen9", next.Generation())
}

func TestNewGenerationCreatesBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "out")
	m, err := NewGeneration(base, core.DefaultConfiguration())
	require.NoError(t, err)
	require.Equal(t, "gen1", m.Generation())
}

func TestStatsWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewStatsWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Record(core.StepStats{Tick: 1, NewlyInfected: 4, NewlyRecovered: 1, TotalSusceptible: 4, TotalInfected: 4, TotalRecovered: 1, StepDuration: 1500 * time.Nanosecond}))
	require.NoError(t, w.Close())

	want := "Tick,NewlyInfected,NewlyRecovered,TotalSusceptible,TotalInfected,TotalRecovered,StepTimeNanos\n" +
		"1,4,1,4,4,1,1500\n"
	require.Equal(t, want, buf.String())
}

func TestReadStatsRejectsGarbage(t *testing.T) {
	_, err := ReadStats(strings.NewReader(strings.Join(Header, ",") + "\n1,2,3,4,5,six,7\n"))
	require.Error(t, err)
}

func TestRunFilesAndScan(t *testing.T) {
	base := t.TempDir()
	cfg := core.Configuration{Width: 3, Height: 3, InitialInfected: 1, InfectionProbability: 0.5, RecoveryProbability: 0.5}.WithSeed(1)
	m, err := NewGeneration(base, cfg)
	require.NoError(t, err)

	steps := []core.StepStats{
		{Tick: 1, NewlyInfected: 2, TotalSusceptible: 6, TotalInfected: 3, StepDuration: 30},
		{Tick: 2, NewlyRecovered: 3, TotalSusceptible: 6, TotalRecovered: 3, StepDuration: 10},
	}
	for run := 1; run <= 2; run++ {
		w, err := m.CreateRun("forkjoin", run)
		require.NoError(t, err)
		for _, st := range steps {
			require.NoError(t, w.Record(st))
		}
		require.NoError(t, w.Close())
	}

	f, err := os.Open(m.RunPath("forkjoin", 1))
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadStats(f)
	require.NoError(t, err)
	if diff := cmp.Diff(steps, got); diff != "" {
		t.Fatalf("CSV round trip mismatch (-want +got):\n%s", diff)
	}

	// A generation without a config is skipped, not fatal.
	require.NoError(t, os.MkdirAll(filepath.Join(base, "gen5", "sequential"), 0o755))
	var skipped []string
	runs, err := Scan(base, func(path string, err error) { skipped = append(skipped, path) })
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(base, "gen5")}, skipped)

	require.Len(t, runs, 2)
	for i, rs := range runs {
		require.Equal(t, "gen1", rs.Generation)
		require.Equal(t, "forkjoin", rs.Engine)
		require.Equal(t, i+1, rs.RunNumber)
		require.Equal(t, 2, rs.Ticks)
		require.Equal(t, time.Duration(40), rs.TotalTime)
		require.Equal(t, time.Duration(10), rs.MinStep)
		require.Equal(t, time.Duration(30), rs.MaxStep)
		require.Equal(t, core.Tally{S: 6, R: 3}, rs.Final)
		require.Equal(t, cfg, rs.Config)
	}
}
