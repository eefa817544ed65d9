package kernel

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matern52 is the Matern kernel with smoothness parameter 5/2:
//
//	k(x, x') = variance * (1 + s + s^2/3) * exp(-s),  s = sqrt(5) * r / lengthscale
//
// where r = ||x - x'||. Twice differentiable; a common alternative to the
// squared-exponential when the latent function is rougher.
type Matern52 struct {
	Variance    float64
	Lengthscale float64
}

// NewMatern52 returns a Matern 5/2 kernel with the given hyperparameters.
func NewMatern52(variance, lengthscale float64) *Matern52 {
	return &Matern52{Variance: variance, Lengthscale: lengthscale}
}

// Matrix implements Kernel.
func (k *Matern52) Matrix(a, b *mat.Dense) *mat.Dense {
	symmetric := b == nil
	if symmetric {
		b = a
	}

	ra, ca := a.Dims()
	rb, _ := b.Dims()
	out := mat.NewDense(ra, rb, nil)
	diff := make([]float64, ca)

	for i := 0; i < ra; i++ {
		xi := a.RawRowView(i)
		jStart := 0
		if symmetric {
			out.Set(i, i, k.Variance)
			jStart = i + 1
		}
		for j := jStart; j < rb; j++ {
			r := math.Sqrt(squaredDistance(xi, b.RawRowView(j), diff))
			s := math.Sqrt(5) * r / k.Lengthscale
			v := k.Variance * (1 + s + s*s/3) * math.Exp(-s)
			out.Set(i, j, v)
			if symmetric {
				out.Set(j, i, v)
			}
		}
	}
	return out
}

// Diag implements Kernel.
func (k *Matern52) Diag(a *mat.Dense) []float64 {
	n, _ := a.Dims()
	d := make([]float64, n)
	for i := range d {
		d[i] = k.Variance
	}
	return d
}

// White is an independent-noise kernel: k(x, x') = variance when x and x'
// are the same point of the same set, zero otherwise. Useful as a sanity
// baseline and for injecting observation noise into a composite model.
type White struct {
	Variance float64
}

// NewWhite returns a white-noise kernel.
func NewWhite(variance float64) *White {
	return &White{Variance: variance}
}

// Matrix implements Kernel. Cross-covariances between distinct point sets
// are identically zero.
func (k *White) Matrix(a, b *mat.Dense) *mat.Dense {
	ra, _ := a.Dims()
	if b == nil {
		out := mat.NewDense(ra, ra, nil)
		for i := 0; i < ra; i++ {
			out.Set(i, i, k.Variance)
		}
		return out
	}
	rb, _ := b.Dims()
	return mat.NewDense(ra, rb, nil)
}

// Diag implements Kernel.
func (k *White) Diag(a *mat.Dense) []float64 {
	n, _ := a.Dims()
	d := make([]float64, n)
	for i := range d {
		d[i] = k.Variance
	}
	return d
}
