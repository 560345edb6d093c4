package core

import (
	"math/bits"
	"math/rand/v2"
)

const (
	goldenGamma = 0x9e3779b97f4a7c15
	float53     = 1.0 / (1 << 53)
)

// RNG is a splittable SplitMix64 generator. A split child shares no mutable
// state with its parent, so each parallel task can own one.
type RNG struct {
	seed  uint64
	gamma uint64
	r     *rand.Rand
}

// NewRNG creates a deterministic RNG using the provided seed.
func NewRNG(seed int64) *RNG {
	return newRNG(uint64(seed), goldenGamma)
}

// NewRandomRNG creates an RNG seeded from the runtime's random source.
func NewRandomRNG() *RNG {
	return newRNG(rand.Uint64(), goldenGamma)
}

// FromSeed returns NewRNG(*seed), or NewRandomRNG when seed is nil.
func FromSeed(seed *int64) *RNG {
	if seed == nil {
		return NewRandomRNG()
	}
	return NewRNG(*seed)
}

func newRNG(seed, gamma uint64) *RNG {
	g := &RNG{seed: seed, gamma: gamma}
	g.r = rand.New(g)
	return g
}

// Split derives an independent stream. The parent advances by two outputs.
func (g *RNG) Split() *RNG {
	seed := g.Uint64()
	gamma := mixGamma(g.nextSeed())
	return newRNG(seed, gamma)
}

// Uint64 returns the next 64 pseudo-random bits; it makes RNG a rand.Source.
func (g *RNG) Uint64() uint64 {
	return mix64(g.nextSeed())
}

// Float64 returns a uniform value in [0, 1).
func (g *RNG) Float64() float64 {
	return float64(g.Uint64()>>11) * float53
}

// IntN returns a uniform int in [0, n). It panics if n <= 0.
func (g *RNG) IntN(n int) int {
	return g.r.IntN(n)
}

// Shuffle pseudo-randomizes the order of n elements with Fisher–Yates.
func (g *RNG) Shuffle(n int, swap func(i, j int)) {
	g.r.Shuffle(n, swap)
}

// Perm returns a pseudo-random permutation of [0, n).
func (g *RNG) Perm(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	g.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx
}

// Source exposes a rand.Rand drawing from this stream for advanced use.
func (g *RNG) Source() *rand.Rand { return g.r }

func (g *RNG) nextSeed() uint64 {
	g.seed += g.gamma
	return g.seed
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// mixGamma yields an odd gamma with enough bit transitions to avoid
// weak Weyl sequences.
func mixGamma(z uint64) uint64 {
	z = (z ^ (z >> 33)) * 0xff51afd7ed558ccd
	z = (z ^ (z >> 33)) * 0xc4ceb9fe1a85ec53
	z = (z ^ (z >> 33)) | 1
	if bits.OnesCount64(z^(z>>1)) < 24 {
		z ^= 0xaaaaaaaaaaaaaaaa
	}
	return z
}
