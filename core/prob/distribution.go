// Package prob provides the minimal probabilistic-program runtime the GP
// models are written against: probability distributions with log-density
// evaluation, and execution traces that record, replay and observe named
// sample sites.
package prob

import (
	"math/rand"
)

// Distribution is a probability distribution over flat float64 vectors.
type Distribution interface {
	// Dim is the length of vectors drawn from the distribution.
	Dim() int

	// Sample draws one vector using the supplied source of randomness.
	Sample(rng *rand.Rand) []float64

	// LogProb evaluates the log density at x. Implementations return
	// negative infinity for values outside the support or for degenerate
	// parameterizations rather than failing.
	LogProb(x []float64) float64
}

// Reparameterized is a Distribution whose samples can be expressed as a
// deterministic function of the parameters and an external standard-normal
// noise vector. Fixing the noise makes the sample a smooth function of the
// parameters, which the inference driver relies on for gradient estimation.
type Reparameterized interface {
	Distribution

	// NoiseDim is the length of the standard-normal noise vector.
	NoiseDim() int

	// SampleWithNoise maps a noise vector of length NoiseDim to a sample.
	SampleWithNoise(eps []float64) []float64
}

// standardNormal fills a fresh vector with n independent N(0,1) draws.
func standardNormal(rng *rand.Rand, n int) []float64 {
	eps := make([]float64, n)
	for i := range eps {
		eps[i] = rng.NormFloat64()
	}
	return eps
}
