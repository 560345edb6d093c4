package forkjoin

// StepResult is the partial outcome of one range of a tick. S, I and R
// count the range's cells by the state they held when the tick began, so
// they do not depend on when concurrent neighbours wrote.
type StepResult struct {
	Infected  int
	Recovered int
	S, I, R   int
}

// Merge combines two partial results component-wise. It is associative and
// commutative.
func (r StepResult) Merge(o StepResult) StepResult {
	return StepResult{
		Infected:  r.Infected + o.Infected,
		Recovered: r.Recovered + o.Recovered,
		S:         r.S + o.S,
		I:         r.I + o.I,
		R:         r.R + o.R,
	}
}
