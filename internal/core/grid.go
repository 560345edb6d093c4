package core

import (
	"fmt"

	prng "sirsim/pkg/core"
)

// Space is the population an epidemic runs on: a dense grid or a contact
// graph. Indices run over [0, Len()).
type Space interface {
	Len() int
	// Cells exposes the backing slice so owners can read/write states directly.
	Cells() []Cell
	// Neighbors appends the indices adjacent to cell i to dst.
	Neighbors(i int, dst []int) []int
	// Clone returns an index-preserving deep copy.
	Clone() Space
}

var (
	dx = [4]int{0, 0, 1, -1}
	dy = [4]int{1, -1, 0, 0}
)

// Grid stores a W×H lattice of cells in row-major order with a bounded
// von Neumann neighbourhood.
type Grid struct {
	W, H  int
	cells []Cell
}

// NewGrid allocates a grid of Susceptible cells.
func NewGrid(w, h int) (*Grid, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: grid dimensions must be positive, got %dx%d", ErrInvalidConfig, w, h)
	}
	g := &Grid{W: w, H: h, cells: make([]Cell, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			g.cells[idx] = Cell{ID: idx, X: x, Y: y, State: Susceptible}
		}
	}
	return g, nil
}

// BuildGrid materializes the initial grid for cfg and seeds its infections.
// A fixed seed always infects the same cells.
func BuildGrid(cfg Configuration) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := NewGrid(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	if cfg.InitialInfected > 0 {
		SeedShuffle(g.cells, cfg.InitialInfected, prng.FromSeed(cfg.Seed))
	}
	return g, nil
}

// SeedShuffle draws a full permutation of cells and infects the first
// min(count, len(cells)) of them.
func SeedShuffle(cells []Cell, count int, rng *prng.RNG) {
	if count <= 0 || len(cells) == 0 {
		return
	}
	order := rng.Perm(len(cells))
	for _, idx := range order[:min(count, len(cells))] {
		cells[idx].State = Infected
	}
}

// Len returns the number of cells.
func (g *Grid) Len() int { return len(g.cells) }

// Cells exposes the backing slice.
func (g *Grid) Cells() []Cell { return g.cells }

// Index returns the linear slice index for coordinates (x, y).
func (g *Grid) Index(x, y int) int { return y*g.W + x }

// InBounds reports whether (x, y) lies on the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.W && y >= 0 && y < g.H
}

// At returns the cell at (x, y). It panics when out of bounds.
func (g *Grid) At(x, y int) *Cell {
	if !g.InBounds(x, y) {
		panic(fmt.Sprintf("core: cell (%d,%d) outside %dx%d grid", x, y, g.W, g.H))
	}
	return &g.cells[g.Index(x, y)]
}

// Neighbors appends the in-bounds 4-neighbours of cell i in the order
// down, up, right, left.
func (g *Grid) Neighbors(i int, dst []int) []int {
	x, y := i%g.W, i/g.W
	for d := 0; d < len(dx); d++ {
		nx, ny := x+dx[d], y+dy[d]
		if nx >= 0 && nx < g.W && ny >= 0 && ny < g.H {
			dst = append(dst, ny*g.W+nx)
		}
	}
	return dst
}

// Copy returns a deep clone; cell i of the copy is cell i of the original.
func (g *Grid) Copy() *Grid {
	return &Grid{W: g.W, H: g.H, cells: append([]Cell(nil), g.cells...)}
}

// Clone implements Space.
func (g *Grid) Clone() Space { return g.Copy() }
