package core

import (
	"time"

	prng "sirsim/pkg/core"
)

// Tally counts cells per compartment.
type Tally struct {
	S, I, R int
}

// Census counts the compartments of cells.
func Census(cells []Cell) Tally {
	var t Tally
	for i := range cells {
		switch cells[i].State {
		case Susceptible:
			t.S++
		case Infected:
			t.I++
		case Recovered:
			t.R++
		}
	}
	return t
}

// Advance applies one tick of transitions to the tally.
func (t Tally) Advance(infected, recovered int) Tally {
	return Tally{S: t.S - infected, I: t.I + infected - recovered, R: t.R + recovered}
}

// Total returns S+I+R.
func (t Tally) Total() int { return t.S + t.I + t.R }

// Stats renders the tally as the StepStats of a tick.
func (t Tally) Stats(tick, infected, recovered int, d time.Duration) StepStats {
	return StepStats{
		Tick:             tick,
		NewlyInfected:    infected,
		NewlyRecovered:   recovered,
		TotalSusceptible: t.S,
		TotalInfected:    t.I,
		TotalRecovered:   t.R,
		StepDuration:     d,
	}
}

// Marks buffers the decisions of one tick until they are applied.
type Marks struct {
	Infect  []int
	Recover []int
}

// Reset empties m, keeping its capacity.
func (m *Marks) Reset() {
	m.Infect = m.Infect[:0]
	m.Recover = m.Recover[:0]
}

// Append merges o into m.
func (m *Marks) Append(o *Marks) {
	m.Infect = append(m.Infect, o.Infect...)
	m.Recover = append(m.Recover, o.Recover...)
}

// Decide runs the decision phase over cells [lo, hi) of space. Every
// Infected cell draws once per Susceptible neighbour, in neighbour order,
// then once for its own recovery. Nothing in space is written.
func Decide(space Space, lo, hi int, rates Rates, rng *prng.RNG, m *Marks) {
	cells := space.Cells()
	nbuf := make([]int, 0, 8)
	for idx := lo; idx < hi; idx++ {
		if cells[idx].State != Infected {
			continue
		}
		nbuf = space.Neighbors(idx, nbuf[:0])
		for _, n := range nbuf {
			if cells[n].State == Susceptible && rng.Float64() < rates.Infection {
				m.Infect = append(m.Infect, n)
			}
		}
		if rng.Float64() < rates.Recovery {
			m.Recover = append(m.Recover, idx)
		}
	}
}

// Apply commits marks. A cell marked several times is infected once;
// recovery only affects cells that are still Infected.
func Apply(cells []Cell, m *Marks) (infected, recovered int) {
	for _, idx := range m.Infect {
		if cells[idx].State == Susceptible {
			cells[idx].State = Infected
			infected++
		}
	}
	for _, idx := range m.Recover {
		if cells[idx].State == Infected {
			cells[idx].State = Recovered
			recovered++
		}
	}
	return infected, recovered
}

// Snapshot returns a detached copy of cells.
func Snapshot(cells []Cell) []Cell {
	return append([]Cell(nil), cells...)
}

// Span is a half-open index range [Lo, Hi).
type Span struct {
	Lo, Hi int
}

// Len returns Hi-Lo.
func (s Span) Len() int { return s.Hi - s.Lo }

// Chunks splits [0, n) into at most parts contiguous ranges of
// ceil(n/parts) cells; the last one may be shorter. Empty ranges are
// omitted.
func Chunks(n, parts int) []Span {
	if n <= 0 || parts <= 0 {
		return nil
	}
	size := (n + parts - 1) / parts
	spans := make([]Span, 0, parts)
	for lo := 0; lo < n; lo += size {
		spans = append(spans, Span{Lo: lo, Hi: min(lo+size, n)})
	}
	return spans
}
