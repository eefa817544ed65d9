package prob

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Normal is an elementwise-independent univariate normal over a vector:
// element i is distributed N(Loc[i], Scale[i]^2) and log densities sum
// across elements.
type Normal struct {
	Loc   []float64
	Scale []float64
}

// NewNormal builds an elementwise normal. loc and scale must have the same
// length; scales must be positive for a proper density.
func NewNormal(loc, scale []float64) *Normal {
	return &Normal{Loc: loc, Scale: scale}
}

// Dim implements Distribution.
func (d *Normal) Dim() int { return len(d.Loc) }

// NoiseDim implements Reparameterized.
func (d *Normal) NoiseDim() int { return len(d.Loc) }

// Sample implements Distribution.
func (d *Normal) Sample(rng *rand.Rand) []float64 {
	return d.SampleWithNoise(standardNormal(rng, len(d.Loc)))
}

// SampleWithNoise implements Reparameterized.
func (d *Normal) SampleWithNoise(eps []float64) []float64 {
	out := make([]float64, len(d.Loc))
	for i := range out {
		out[i] = d.Loc[i] + d.Scale[i]*eps[i]
	}
	return out
}

// LogProb implements Distribution.
func (d *Normal) LogProb(x []float64) float64 {
	if len(x) != len(d.Loc) {
		return math.Inf(-1)
	}
	total := 0.0
	for i := range x {
		if !(d.Scale[i] > 0) {
			return math.Inf(-1)
		}
		total += distuv.Normal{Mu: d.Loc[i], Sigma: d.Scale[i]}.LogProb(x[i])
	}
	return total
}
