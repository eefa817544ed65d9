package kernel

import (
	"math"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/mat"
)

// RBF is the squared-exponential (radial basis function) kernel:
//
//	k(x, x') = variance * exp(-||x - x'||^2 / (2 * lengthscale^2))
//
// It is infinitely differentiable and the default choice for smooth latent
// functions.
type RBF struct {
	// Variance is the prior marginal variance k(x, x). Must be positive.
	Variance float64

	// Lengthscale controls how quickly correlation decays with distance.
	// Must be positive.
	Lengthscale float64
}

// NewRBF returns a squared-exponential kernel with the given hyperparameters.
func NewRBF(variance, lengthscale float64) *RBF {
	return &RBF{Variance: variance, Lengthscale: lengthscale}
}

// Matrix implements Kernel.
func (k *RBF) Matrix(a, b *mat.Dense) *mat.Dense {
	symmetric := b == nil
	if symmetric {
		b = a
	}

	ra, ca := a.Dims()
	rb, _ := b.Dims()
	out := mat.NewDense(ra, rb, nil)
	diff := make([]float64, ca)
	inv2l2 := 1.0 / (2.0 * k.Lengthscale * k.Lengthscale)

	for i := 0; i < ra; i++ {
		xi := a.RawRowView(i)
		jStart := 0
		if symmetric {
			out.Set(i, i, k.Variance)
			jStart = i + 1
		}
		for j := jStart; j < rb; j++ {
			d2 := squaredDistance(xi, b.RawRowView(j), diff)
			v := k.Variance * math.Exp(-d2*inv2l2)
			out.Set(i, j, v)
			if symmetric {
				out.Set(j, i, v)
			}
		}
	}
	return out
}

// Diag implements Kernel. The squared-exponential kernel has a constant
// marginal variance.
func (k *RBF) Diag(a *mat.Dense) []float64 {
	n, _ := a.Dims()
	d := make([]float64, n)
	for i := range d {
		d[i] = k.Variance
	}
	return d
}

// squaredDistance computes ||x - y||^2 using the scratch buffer for the
// elementwise difference.
func squaredDistance(x, y, scratch []float64) float64 {
	for i := range x {
		scratch[i] = x[i] - y[i]
	}
	return vek.Dot(scratch, scratch)
}
