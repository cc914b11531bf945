// internal/behavior/noise.go
package behavior

import (
	"math"
	"math/rand"
)

// PinkNoiseGenerator produces 1/f noise via the stochastic Voss-McCartney
// algorithm. Human inter-action intervals show this kind of long-range
// correlation, so pause jitter drawn from it reads less mechanical than
// independent samples.
type PinkNoiseGenerator struct {
	rng    *rand.Rand
	values []float64 // current value of each white noise source
	p      []float64 // update probability per source
	pink   float64   // running sum of sources
	n      int
	scale  float64
}

// NewPinkNoiseGenerator creates a generator with n sources (12 is typical).
func NewPinkNoiseGenerator(rng *rand.Rand, n int) *PinkNoiseGenerator {
	if n <= 0 {
		n = 12
	}
	g := &PinkNoiseGenerator{
		rng:    rng,
		values: make([]float64, n),
		p:      make([]float64, n),
		n:      n,
		scale:  1.0 / math.Sqrt(float64(n)),
	}

	// Geometric update probabilities: low-index sources change often,
	// high-index ones rarely, which is what stacks up into a 1/f spectrum.
	totalP := 0.0
	for i := 0; i < n; i++ {
		g.p[i] = math.Pow(2, float64(-i))
		totalP += g.p[i]
	}
	for i := 0; i < n; i++ {
		g.p[i] /= totalP
		g.values[i] = g.nextWhite()
		g.pink += g.values[i]
	}
	return g
}

func (g *PinkNoiseGenerator) nextWhite() float64 {
	return g.rng.Float64()*2.0 - 1.0
}

// Next returns the next sample, normalized to roughly [-1, 1].
func (g *PinkNoiseGenerator) Next() float64 {
	r := g.rng.Float64()
	cumulative := 0.0
	idx := g.n - 1
	for i := 0; i < g.n; i++ {
		cumulative += g.p[i]
		if r < cumulative {
			idx = i
			break
		}
	}

	old := g.values[idx]
	g.values[idx] = g.nextWhite()
	g.pink += g.values[idx] - old

	return g.pink * g.scale
}
