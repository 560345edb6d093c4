package core

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	lvbfs "github.com/lvlath/go/bfs"
	lvcore "github.com/lvlath/go/core"

	prng "sirsim/pkg/core"
)

// Edge is an undirected contact between two node IDs.
type Edge struct {
	From, To int
}

// ContactGraph is an arbitrary undirected contact network. The topology is
// held as an lvlath graph; engines read a compressed adjacency derived from
// it. Slots are ordered by ascending node ID.
type ContactGraph struct {
	cells   []Cell
	offsets []int
	adj     []int
	index   map[int]int
	topo    *lvcore.Graph
}

// NewTopology returns an empty undirected, unweighted simple graph.
func NewTopology() (*lvcore.Graph, error) { return lvcore.NewGraph() }

// VertexID names node id in a topology.
func VertexID(id int) string { return strconv.Itoa(id) }

// AddContact records the undirected edge from-to in topo, creating missing
// endpoints. Self-loops add only the node and repeated edges are ignored.
func AddContact(topo *lvcore.Graph, from, to int) error {
	a, b := VertexID(from), VertexID(to)
	if from == to {
		return topo.AddVertex(a)
	}
	if topo.HasEdge(a, b) {
		return nil
	}
	if _, err := topo.AddEdge(a, b, 0); err != nil {
		return fmt.Errorf("adding contact %d-%d: %w", from, to, err)
	}
	return nil
}

// NewContactGraph builds a graph over the union of ids and every edge
// endpoint. Self-loops and duplicate edges are dropped.
func NewContactGraph(ids []int, edges []Edge) (*ContactGraph, error) {
	topo, err := NewTopology()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := topo.AddVertex(VertexID(id)); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := AddContact(topo, e.From, e.To); err != nil {
			return nil, err
		}
	}
	return FromTopology(topo)
}

// FromTopology derives the engine view of topo. Vertex IDs must be decimal
// node IDs and every edge undirected. topo must not change afterwards.
func FromTopology(topo *lvcore.Graph) (*ContactGraph, error) {
	if topo.Directed() || topo.HasDirectedEdges() {
		return nil, fmt.Errorf("%w: contact graphs are undirected", ErrInvalidConfig)
	}
	vids := topo.Vertices()
	nodes := make(map[string]int, len(vids))
	order := make([]int, 0, len(vids))
	for _, v := range vids {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: vertex %q is not a node ID", ErrInvalidConfig, v)
		}
		nodes[v] = id
		order = append(order, id)
	}
	slices.Sort(order)

	g := &ContactGraph{
		cells:   make([]Cell, len(order)),
		offsets: make([]int, len(order)+1),
		index:   make(map[int]int, len(order)),
		topo:    topo,
	}
	for slot, id := range order {
		if _, dup := g.index[id]; dup {
			return nil, fmt.Errorf("%w: node %d appears under two vertex IDs", ErrInvalidConfig, id)
		}
		g.cells[slot] = Cell{ID: id, State: Susceptible}
		g.index[id] = slot
	}

	slotOf := make(map[string]int, len(vids))
	for v, id := range nodes {
		slotOf[v] = g.index[id]
	}
	rows := make([][]int, len(order))
	for _, v := range vids {
		nbrs, err := topo.NeighborIDs(v)
		if err != nil {
			return nil, fmt.Errorf("neighbours of %s: %w", v, err)
		}
		slot := slotOf[v]
		row := make([]int, 0, len(nbrs))
		for _, n := range nbrs {
			if n != v {
				row = append(row, slotOf[n])
			}
		}
		slices.Sort(row)
		rows[slot] = row
		g.offsets[slot+1] = len(row)
	}
	for i := range rows {
		g.offsets[i+1] += g.offsets[i]
	}
	g.adj = slices.Concat(rows...)
	return g, nil
}

// Topology returns the underlying graph. It must be treated as read-only.
func (g *ContactGraph) Topology() *lvcore.Graph { return g.topo }

// Len returns the number of nodes.
func (g *ContactGraph) Len() int { return len(g.cells) }

// Cells exposes the backing slice.
func (g *ContactGraph) Cells() []Cell { return g.cells }

// Neighbors appends the slots adjacent to slot i.
func (g *ContactGraph) Neighbors(i int, dst []int) []int {
	return append(dst, g.adj[g.offsets[i]:g.offsets[i+1]]...)
}

// Degree returns the number of contacts of slot i.
func (g *ContactGraph) Degree(i int) int { return g.offsets[i+1] - g.offsets[i] }

// EdgeCount returns the number of undirected edges.
func (g *ContactGraph) EdgeCount() int { return len(g.adj) / 2 }

// Slot returns the slot holding node id.
func (g *ContactGraph) Slot(id int) (int, bool) {
	slot, ok := g.index[id]
	return slot, ok
}

// Edges lists every undirected edge once, lower node ID first.
func (g *ContactGraph) Edges() []Edge {
	out := make([]Edge, 0, g.EdgeCount())
	for i := range g.cells {
		for _, j := range g.adj[g.offsets[i]:g.offsets[i+1]] {
			if i < j {
				out = append(out, Edge{From: g.cells[i].ID, To: g.cells[j].ID})
			}
		}
	}
	return out
}

// Copy returns a deep clone. Adjacency is immutable and therefore shared.
func (g *ContactGraph) Copy() *ContactGraph {
	return &ContactGraph{
		cells:   append([]Cell(nil), g.cells...),
		offsets: g.offsets,
		adj:     g.adj,
		index:   g.index,
		topo:    g.topo,
	}
}

// Clone implements Space.
func (g *ContactGraph) Clone() Space { return g.Copy() }

// Components returns the connected components as slot lists, ordered by
// their lowest slot.
func (g *ContactGraph) Components(ctx context.Context) ([][]int, error) {
	res, err := lvbfs.Components(ctx, g.topo)
	if err != nil {
		return nil, fmt.Errorf("finding components: %w", err)
	}
	comps := make([][]int, 0, res.Count)
	for _, vids := range res.Components {
		comp := make([]int, len(vids))
		for k, v := range vids {
			id, _ := strconv.Atoi(v)
			comp[k] = g.index[id]
		}
		slices.Sort(comp)
		comps = append(comps, comp)
	}
	slices.SortFunc(comps, func(a, b []int) int { return a[0] - b[0] })
	return comps, nil
}

// SeedComponents infects one uniformly chosen node in every connected
// component and returns how many were infected.
func (g *ContactGraph) SeedComponents(ctx context.Context, rng *prng.RNG) (int, error) {
	comps, err := g.Components(ctx)
	if err != nil {
		return 0, err
	}
	for _, comp := range comps {
		g.cells[comp[rng.IntN(len(comp))]].State = Infected
	}
	return len(comps), nil
}
