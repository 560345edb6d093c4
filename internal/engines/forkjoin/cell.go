package forkjoin

import "sirsim/internal/core"

// A cell word packs the state in the low two bits and, above them, the
// tick stamp of its last write.
const (
	stateBits = 2
	stateMask = 1<<stateBits - 1
	maxStamp  = 1<<(32-stateBits) - 1
)

func pack(s core.State, stamp uint32) uint32 {
	return stamp<<stateBits | uint32(s)
}

func unpack(v uint32) (core.State, uint32) {
	return core.State(v & stateMask), v >> stateBits
}

// entryState returns the state a cell held when tick gen began. A write
// stamped gen happened during the tick: Infected was Susceptible and
// Recovered was Infected.
func entryState(v, gen uint32) core.State {
	s, stamp := unpack(v)
	if stamp != gen {
		return s
	}
	switch s {
	case core.Infected:
		return core.Susceptible
	case core.Recovered:
		return core.Infected
	}
	return s
}
