package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	prng "sirsim/pkg/core"
)

func TestGridNeighbourCounts(t *testing.T) {
	g, err := NewGrid(3, 3)
	require.NoError(t, err)

	want := map[[2]int]int{
		{0, 0}: 2, {2, 0}: 2, {0, 2}: 2, {2, 2}: 2,
		{1, 0}: 3, {0, 1}: 3, {2, 1}: 3, {1, 2}: 3,
		{1, 1}: 4,
	}
	for pos, n := range want {
		got := g.Neighbors(g.Index(pos[0], pos[1]), nil)
		if len(got) != n {
			t.Fatalf("cell (%d,%d) has %d neighbours, expected %d", pos[0], pos[1], len(got), n)
		}
	}
}

func TestGridNeighbourOrder(t *testing.T) {
	g, err := NewGrid(3, 3)
	require.NoError(t, err)

	center := g.Index(1, 1)
	got := g.Neighbors(center, nil)
	want := []int{g.Index(1, 2), g.Index(1, 0), g.Index(2, 1), g.Index(0, 1)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("neighbour order mismatch (-want +got):\n%s", diff)
	}
}

func TestNewGridRowMajor(t *testing.T) {
	g, err := NewGrid(4, 2)
	require.NoError(t, err)
	require.Equal(t, 8, g.Len())
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			c := g.At(x, y)
			require.Equal(t, y*4+x, c.ID)
			require.Equal(t, x, c.X)
			require.Equal(t, y, c.Y)
			require.Equal(t, Susceptible, c.State)
		}
	}
	require.Panics(t, func() { g.At(4, 0) })
}

func TestBuildGridSeeding(t *testing.T) {
	cfg := DefaultConfiguration().WithSeed(42)
	cfg.Width, cfg.Height, cfg.InitialInfected = 10, 10, 7

	a, err := BuildGrid(cfg)
	require.NoError(t, err)
	b, err := BuildGrid(cfg)
	require.NoError(t, err)

	require.Equal(t, 7, Census(a.Cells()).I)
	if diff := cmp.Diff(a.Cells(), b.Cells()); diff != "" {
		t.Fatalf("same seed produced different grids (-a +b):\n%s", diff)
	}

	other, err := BuildGrid(cfg.WithSeed(43))
	require.NoError(t, err)
	require.NotEqual(t, a.Cells(), other.Cells())
}

func TestBuildGridInfectsAtMostEveryCell(t *testing.T) {
	cfg := DefaultConfiguration().WithSeed(1)
	cfg.Width, cfg.Height, cfg.InitialInfected = 2, 2, 10

	g, err := BuildGrid(cfg)
	require.NoError(t, err)
	require.Equal(t, Tally{I: 4}, Census(g.Cells()))
}

func TestBuildGridRejectsInvalidConfig(t *testing.T) {
	cases := map[string]func(*Configuration){
		"zero width":        func(c *Configuration) { c.Width = 0 },
		"negative height":   func(c *Configuration) { c.Height = -3 },
		"negative infected": func(c *Configuration) { c.InitialInfected = -1 },
		"p_inf above one":   func(c *Configuration) { c.InfectionProbability = 1.5 },
		"p_rec below zero":  func(c *Configuration) { c.RecoveryProbability = -0.1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfiguration()
			mutate(&cfg)
			_, err := BuildGrid(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestGridCopyIsIndependent(t *testing.T) {
	g, err := NewGrid(3, 3)
	require.NoError(t, err)
	g.At(1, 1).State = Infected

	c := g.Copy()
	require.Equal(t, g.Cells(), c.Cells())

	c.At(1, 1).State = Recovered
	c.At(0, 0).State = Infected
	require.Equal(t, Infected, g.At(1, 1).State)
	require.Equal(t, Susceptible, g.At(0, 0).State)
}

func TestSeedShuffleUsesFullPermutation(t *testing.T) {
	cells := make([]Cell, 20)
	SeedShuffle(cells, 3, prng.NewRNG(9))

	want := prng.NewRNG(9).Perm(20)[:3]
	for _, idx := range want {
		require.Equal(t, Infected, cells[idx].State)
	}
	require.Equal(t, 3, Census(cells).I)
}
