package graphio

import (
	"fmt"
	"math"
	"math/rand"

	lvbuilder "github.com/lvlath/go/builder"
	lvcore "github.com/lvlath/go/core"

	"sirsim/internal/core"
	prng "sirsim/pkg/core"
)

// Kind names a random graph model.
type Kind string

const (
	ErdosRenyi Kind = "erdos-renyi"
	ScaleFree  Kind = "scale-free"
)

// DefaultAttach is the number of edges each new Barabási–Albert node adds.
const DefaultAttach = 2

// Generate builds a random graph over nodes 0..n-1. For ErdosRenyi param is
// the edge probability; for ScaleFree it is the attachment count (zero
// selects DefaultAttach).
func Generate(kind Kind, n int, param float64, rng *prng.RNG) (*core.ContactGraph, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: node count must be positive, got %d", core.ErrInvalidConfig, n)
	}
	switch kind {
	case ErdosRenyi:
		if math.IsNaN(param) || param < 0 || param > 1 {
			return nil, fmt.Errorf("%w: edge probability must be in [0,1], got %v", core.ErrInvalidConfig, param)
		}
		return build(GNP(n, param, rng))
	case ScaleFree:
		m := int(param)
		if m == 0 {
			m = DefaultAttach
		}
		if m < 0 {
			return nil, fmt.Errorf("%w: attachment count must be positive, got %d", core.ErrInvalidConfig, m)
		}
		return build(BarabasiAlbert(n, m, rng))
	}
	return nil, fmt.Errorf("%w: unknown graph kind %q", core.ErrInvalidConfig, kind)
}

func build(topo *lvcore.Graph, err error) (*core.ContactGraph, error) {
	if err != nil {
		return nil, fmt.Errorf("generating graph: %w", err)
	}
	return core.FromTopology(topo)
}

// GNP draws each of the n(n-1)/2 possible edges over nodes 0..n-1
// independently with probability p.
func GNP(n int, p float64, rng *prng.RNG) (*lvcore.Graph, error) {
	var opts []lvbuilder.Option
	// The builder needs no randomness at the extremes, and p=0 must stay
	// empty even when a draw is exactly zero.
	if p > 0 && p < 1 {
		opts = append(opts, lvbuilder.WithRand(rand.New(rand.NewSource(int64(rng.Uint64())))))
	}
	return lvbuilder.BuildGraph(nil, opts, lvbuilder.RandomSparse(n, p))
}

// BarabasiAlbert grows a scale-free graph over nodes 0..n-1 by preferential
// attachment. It starts from a clique of m+1 nodes; every later node links
// to m distinct existing nodes chosen with probability proportional to
// their degree.
func BarabasiAlbert(n, m int, rng *prng.RNG) (*lvcore.Graph, error) {
	topo, err := core.NewTopology()
	if err != nil {
		return nil, err
	}
	for v := range n {
		if err := topo.AddVertex(core.VertexID(v)); err != nil {
			return nil, err
		}
	}
	if m < 1 || n < 2 {
		return topo, nil
	}

	seed := min(m+1, n)
	// targets holds every edge endpoint, so a uniform pick is degree-biased.
	targets := make([]int, 0, 2*m*n)
	for v := 1; v < seed; v++ {
		for w := 0; w < v; w++ {
			if err := core.AddContact(topo, w, v); err != nil {
				return nil, err
			}
			targets = append(targets, w, v)
		}
	}

	chosen := make(map[int]struct{}, m)
	picks := make([]int, 0, m)
	for v := seed; v < n; v++ {
		clear(chosen)
		picks = picks[:0]
		for len(picks) < m {
			t := targets[rng.IntN(len(targets))]
			if _, dup := chosen[t]; dup {
				continue
			}
			chosen[t] = struct{}{}
			picks = append(picks, t)
		}
		for _, t := range picks {
			if err := core.AddContact(topo, t, v); err != nil {
				return nil, err
			}
			targets = append(targets, t, v)
		}
	}
	return topo, nil
}
