package engine

import "math/rand/v2"

// Random is the randomness source used by the environment and the agent.
// Every random choice in a run goes through one Random so a fixed seed
// reproduces the run exactly.
type Random interface {
	IntN(n int) int
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

type pcgRandom struct {
	r *rand.Rand
}

// NewRandom returns a deterministic PCG-backed source for the seed
func NewRandom(seed int64) Random {
	return &pcgRandom{r: rand.New(rand.NewPCG(uint64(seed), 0))}
}

func (p *pcgRandom) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return p.r.IntN(n)
}

func (p *pcgRandom) Float64() float64 { return p.r.Float64() }

func (p *pcgRandom) Shuffle(n int, swap func(i, j int)) { p.r.Shuffle(n, swap) }

// uniform returns a value in [lo, hi)
func uniform(rng Random, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}
