package core

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	prng "sirsim/pkg/core"
)

func TestContactGraphNormalisesEdges(t *testing.T) {
	g, err := NewContactGraph([]int{99}, []Edge{
		{From: 5, To: 1},
		{From: 1, To: 5},
		{From: 3, To: 3},
		{From: 3, To: 1},
	})
	require.NoError(t, err)

	require.Equal(t, 4, g.Len())
	ids := make([]int, g.Len())
	for i, c := range g.Cells() {
		ids[i] = c.ID
	}
	require.Equal(t, []int{1, 3, 5, 99}, ids)
	require.Equal(t, 2, g.EdgeCount())

	one, ok := g.Slot(1)
	require.True(t, ok)
	require.Equal(t, 2, g.Degree(one))

	want := []Edge{{From: 1, To: 3}, {From: 1, To: 5}}
	if diff := cmp.Diff(want, g.Edges()); diff != "" {
		t.Fatalf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestContactGraphComponents(t *testing.T) {
	g, err := NewContactGraph([]int{7, 12}, []Edge{{0, 1}, {1, 2}, {3, 4}, {10, 12}, {11, 10}})
	require.NoError(t, err)
	comps, err := g.Components(context.Background())
	require.NoError(t, err)
	// Slots follow numeric node order, not the lexical vertex IDs.
	want := [][]int{{0, 1, 2}, {3, 4}, {5}, {6, 7, 8}}
	if diff := cmp.Diff(want, comps); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}

	n, err := g.SeedComponents(context.Background(), prng.NewRNG(4))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	for _, comp := range comps {
		infected := 0
		for _, slot := range comp {
			if g.Cells()[slot].State == Infected {
				infected++
			}
		}
		require.Equal(t, 1, infected)
	}
}

func TestContactGraphCopyIsIndependent(t *testing.T) {
	g, err := NewContactGraph(nil, []Edge{{0, 1}})
	require.NoError(t, err)
	c := g.Clone()
	c.Cells()[0].State = Infected
	require.Equal(t, Susceptible, g.Cells()[0].State)
	require.Equal(t, g.Neighbors(0, nil), c.Neighbors(0, nil))
}

func TestFromTopology(t *testing.T) {
	topo, err := NewTopology()
	require.NoError(t, err)
	require.NoError(t, AddContact(topo, 2, 10))
	require.NoError(t, AddContact(topo, 10, 2))
	require.NoError(t, AddContact(topo, 9, 9))
	require.NoError(t, AddContact(topo, 10, 9))

	g, err := FromTopology(topo)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())
	require.Equal(t, 2, g.EdgeCount())
	require.Same(t, topo, g.Copy().Topology())

	ten, ok := g.Slot(10)
	require.True(t, ok)
	require.Equal(t, []int{0, 1}, g.Neighbors(ten, nil))

	named, err := NewTopology()
	require.NoError(t, err)
	require.NoError(t, named.AddVertex("alice"))
	_, err = FromTopology(named)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
