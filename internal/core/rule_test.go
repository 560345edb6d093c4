package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	prng "sirsim/pkg/core"
)

func TestDecideCertainInfection(t *testing.T) {
	g, err := NewGrid(3, 3)
	require.NoError(t, err)
	g.At(1, 1).State = Infected

	var m Marks
	Decide(g, 0, g.Len(), Rates{Infection: 1, Recovery: 0}, prng.NewRNG(1), &m)
	require.ElementsMatch(t, []int{g.Index(1, 2), g.Index(1, 0), g.Index(2, 1), g.Index(0, 1)}, m.Infect)
	require.Empty(t, m.Recover)

	// Decisions only; the grid is untouched until Apply.
	require.Equal(t, Tally{S: 8, I: 1}, Census(g.Cells()))
}

func TestDecideSkipsNonSusceptibleNeighbours(t *testing.T) {
	g, err := NewGrid(2, 1)
	require.NoError(t, err)
	g.At(0, 0).State = Infected
	g.At(1, 0).State = Recovered

	var m Marks
	Decide(g, 0, g.Len(), Rates{Infection: 1, Recovery: 1}, prng.NewRNG(1), &m)
	require.Empty(t, m.Infect)
	require.Equal(t, []int{0}, m.Recover)
}

func TestApplyIsIdempotent(t *testing.T) {
	cells := []Cell{{State: Susceptible}, {State: Infected}, {State: Recovered}}
	m := Marks{Infect: []int{0, 0, 2}, Recover: []int{1, 1, 2}}

	inf, rec := Apply(cells, &m)
	require.Equal(t, 1, inf)
	require.Equal(t, 1, rec)
	require.Equal(t, []State{Infected, Recovered, Recovered}, states(cells))
}

func TestApplyInfectedThisTickDoesNotRecover(t *testing.T) {
	cells := []Cell{{State: Susceptible}}
	// Recovery is only ever decided for cells already Infected at tick
	// start, so a fresh infection cannot also be marked for recovery. Apply
	// still resolves infections before recoveries.
	inf, rec := Apply(cells, &Marks{Infect: []int{0}})
	require.Equal(t, 1, inf)
	require.Zero(t, rec)
}

func TestTallyAdvance(t *testing.T) {
	got := Tally{S: 10, I: 3, R: 2}.Advance(4, 1)
	require.Equal(t, Tally{S: 6, I: 6, R: 3}, got)
	require.Equal(t, 15, got.Total())

	st := got.Stats(7, 4, 1, 0)
	require.Equal(t, 7, st.Tick)
	require.Equal(t, 15, st.Total())
}

func TestChunks(t *testing.T) {
	cases := []struct {
		n, parts int
		want     []Span
	}{
		{10, 3, []Span{{0, 4}, {4, 8}, {8, 10}}},
		{9, 3, []Span{{0, 3}, {3, 6}, {6, 9}}},
		{2, 4, []Span{{0, 1}, {1, 2}}},
		{5, 1, []Span{{0, 5}}},
		{0, 4, nil},
	}
	for _, tc := range cases {
		got := Chunks(tc.n, tc.parts)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("Chunks(%d,%d) mismatch (-want +got):\n%s", tc.n, tc.parts, diff)
		}
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	cells := []Cell{{State: Infected}}
	snap := Snapshot(cells)
	snap[0].State = Recovered
	require.Equal(t, Infected, cells[0].State)
}

func states(cells []Cell) []State {
	out := make([]State, len(cells))
	for i := range cells {
		out[i] = cells[i].State
	}
	return out
}
