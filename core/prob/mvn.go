package prob

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const log2Pi = 1.8378770664093453

// MultivariateNormal is a batch of independent multivariate normal
// distributions, each parameterized by a location vector and a
// lower-triangular scale factor L with covariance L * L^T.
//
// The batch has one row of Loc and one scale factor per latent process;
// samples and log densities are laid out row-major as batch * dim vectors
// and log densities sum over the batch.
type MultivariateNormal struct {
	loc   *mat.Dense      // batch x dim
	scale []*mat.TriDense // len batch, each dim x dim lower triangular
	batch int
	dim   int
}

// NewMultivariateNormal builds a batched multivariate normal. scale must
// hold one lower-triangular factor per row of loc; the factors may be
// shared pointers.
func NewMultivariateNormal(loc *mat.Dense, scale []*mat.TriDense) (*MultivariateNormal, error) {
	batch, dim := loc.Dims()
	if len(scale) != batch {
		return nil, fmt.Errorf("prob: %d scale factors for batch of %d", len(scale), batch)
	}
	for i, s := range scale {
		if n, _ := s.Dims(); n != dim {
			return nil, fmt.Errorf("prob: scale factor %d is %dx%d, want %dx%d", i, n, n, dim, dim)
		}
	}
	return &MultivariateNormal{loc: loc, scale: scale, batch: batch, dim: dim}, nil
}

// Dim implements Distribution.
func (d *MultivariateNormal) Dim() int { return d.batch * d.dim }

// NoiseDim implements Reparameterized.
func (d *MultivariateNormal) NoiseDim() int { return d.batch * d.dim }

// Sample implements Distribution.
func (d *MultivariateNormal) Sample(rng *rand.Rand) []float64 {
	return d.SampleWithNoise(standardNormal(rng, d.NoiseDim()))
}

// SampleWithNoise implements Reparameterized: x_b = loc_b + L_b * eps_b.
func (d *MultivariateNormal) SampleWithNoise(eps []float64) []float64 {
	out := make([]float64, d.batch*d.dim)
	for b := 0; b < d.batch; b++ {
		loc := d.loc.RawRowView(b)
		L := d.scale[b]
		seg := out[b*d.dim : (b+1)*d.dim]
		e := eps[b*d.dim : (b+1)*d.dim]
		for i := 0; i < d.dim; i++ {
			v := loc[i]
			for j := 0; j <= i; j++ {
				v += L.At(i, j) * e[j]
			}
			seg[i] = v
		}
	}
	return out
}

// LogProb implements Distribution. For each batch member,
//
//	log p(x) = -0.5 * ||L^{-1}(x - loc)||^2 - log det L - 0.5 * dim * log(2*pi)
//
// evaluated via one forward substitution per member. A scale factor with a
// non-positive diagonal yields negative infinity.
func (d *MultivariateNormal) LogProb(x []float64) float64 {
	if len(x) != d.batch*d.dim {
		return math.Inf(-1)
	}
	total := 0.0
	diff := make([]float64, d.dim)
	z := make([]float64, d.dim)
	for b := 0; b < d.batch; b++ {
		loc := d.loc.RawRowView(b)
		L := d.scale[b]
		seg := x[b*d.dim : (b+1)*d.dim]

		logDet := 0.0
		for i := 0; i < d.dim; i++ {
			di := L.At(i, i)
			if !(di > 0) {
				return math.Inf(-1)
			}
			logDet += math.Log(di)
			diff[i] = seg[i] - loc[i]
		}

		// Forward substitution: L z = diff.
		quad := 0.0
		for i := 0; i < d.dim; i++ {
			v := diff[i]
			for j := 0; j < i; j++ {
				v -= L.At(i, j) * z[j]
			}
			z[i] = v / L.At(i, i)
			quad += z[i] * z[i]
		}

		total += -0.5*quad - logDet - 0.5*float64(d.dim)*log2Pi
	}
	return total
}
