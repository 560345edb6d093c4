package graphio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"sirsim/internal/core"
	prng "sirsim/pkg/core"
)

func TestDetect(t *testing.T) {
	require.Equal(t, FormatCSV, Detect([]byte("# header\n\n1;2\n")))
	require.Equal(t, FormatText, Detect([]byte("# 1;2 in a comment\n1 2\n")))
	require.Equal(t, FormatText, Detect(nil))
}

func TestReadText(t *testing.T) {
	in := `# SNAP style edge list
# FromNodeId	ToNodeId

0	1
1   2 17
2 0
`
	edges, err := Read(strings.NewReader(in), FormatText)
	require.NoError(t, err)
	want := []core.Edge{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 0}}
	if diff := cmp.Diff(want, edges); diff != "" {
		t.Fatalf("edges mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"0 1\n7\n", "0 1\nx 2\n"} {
		_, err := Read(strings.NewReader(bad), FormatText)
		require.ErrorIs(t, err, ErrMalformed, "%q", bad)
		require.ErrorContains(t, err, "line 2")
	}
}

func TestReadCSV(t *testing.T) {
	edges, err := Read(strings.NewReader("4;5\n5; 6\n"), FormatCSV)
	require.NoError(t, err)
	require.Equal(t, []core.Edge{{From: 4, To: 5}, {From: 5, To: 6}}, edges)

	_, err = Read(strings.NewReader("4;x\n"), FormatCSV)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Read(strings.NewReader("4\n"), FormatCSV)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	g, err := core.NewContactGraph(nil, []core.Edge{{From: 3, To: 1}, {From: 1, To: 2}, {From: 2, To: 3}})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "graphs", "triangle.csv")
	require.NoError(t, Save(path, g))

	back, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(g.Edges(), back.Edges()); diff != "" {
		t.Fatalf("round trip changed edges (-want +got):\n%s", diff)
	}
}

func TestLoadTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n10 11\n11 12\n"), 0o644))
	g, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())
	require.Equal(t, 2, g.EdgeCount())

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestGNPExtremes(t *testing.T) {
	rng := prng.NewRNG(1)
	empty, err := GNP(10, 0, rng)
	require.NoError(t, err)
	require.Equal(t, 10, empty.VertexCount())
	require.Zero(t, empty.EdgeCount())

	full, err := GNP(10, 1, rng)
	require.NoError(t, err)
	require.Equal(t, 45, full.EdgeCount())
}

func TestGNPDensity(t *testing.T) {
	const n, p = 400, 0.05
	topo, err := GNP(n, p, prng.NewRNG(7))
	require.NoError(t, err)
	g, err := core.FromTopology(topo)
	require.NoError(t, err)
	require.Equal(t, n, g.Len())

	edges := g.Edges()
	expected := p * n * (n - 1) / 2
	require.InDelta(t, expected, float64(len(edges)), 0.1*expected)

	seen := map[core.Edge]bool{}
	for _, e := range edges {
		require.Less(t, e.From, e.To)
		require.Less(t, e.To, n)
		require.False(t, seen[e], "duplicate edge %v", e)
		seen[e] = true
	}
}

func TestBarabasiAlbert(t *testing.T) {
	const n, m = 300, 3
	g, err := Generate(ScaleFree, n, m, prng.NewRNG(5))
	require.NoError(t, err)
	require.Equal(t, n, g.Len())
	// Seed clique plus m edges per later node.
	require.Equal(t, m*(m+1)/2+m*(n-m-1), g.EdgeCount())
	comps, err := g.Components(context.Background())
	require.NoError(t, err)
	require.Len(t, comps, 1)

	maxDeg := 0
	for i := 0; i < g.Len(); i++ {
		require.GreaterOrEqual(t, g.Degree(i), m)
		maxDeg = max(maxDeg, g.Degree(i))
	}
	require.Greater(t, maxDeg, 4*m, "preferential attachment should grow hubs")
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(ErdosRenyi, 200, 0.03, prng.NewRNG(3))
	require.NoError(t, err)
	b, err := Generate(ErdosRenyi, 200, 0.03, prng.NewRNG(3))
	require.NoError(t, err)
	require.Equal(t, a.Edges(), b.Edges())
	require.Equal(t, 200, a.Len(), "isolated nodes are kept")
}

func TestGenerateRejects(t *testing.T) {
	_, err := Generate(ErdosRenyi, 0, 0.1, prng.NewRNG(1))
	require.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = Generate(ErdosRenyi, 10, 1.5, prng.NewRNG(1))
	require.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = Generate("lattice", 10, 0, prng.NewRNG(1))
	require.ErrorIs(t, err, core.ErrInvalidConfig)
}
