package gp

import (
	"fmt"

	"github.com/adalundhe/sparsegp/core/kernel"
	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// Sparse GP conditional
// =============================================================================
//
// Given inducing inputs Xu with variational posterior q(u) = N(uLoc, S S^T),
// the latent function at new points Xnew is conditionally
//
//	mean = W^T Luu^{-1} uLoc
//	cov  = Kff - W^T W + (V^T W)^T (V^T W)
//
// where Luu is the Cholesky factor of Kuu + jitter*I, W = Luu^{-1} Kuf and
// V = Luu^{-1} S. The -W^T W term removes the prior information carried by
// the inducing points; the V term propagates the posterior uncertainty of u
// back into f. Everything is computed through triangular solves against
// Luu; Kuu is never inverted explicitly, which keeps the per-query cost at
// O(M^2 |Xnew|) and the arithmetic stable.

// Prediction is the predictive distribution of latent function values,
// one latent process per row and one column per query point. Exactly one of
// Variance (diagonal mode) and Covariance (full mode, one matrix per latent
// row) is set.
type Prediction struct {
	Mean       *mat.Dense
	Variance   *mat.Dense
	Covariance []*mat.SymDense
}

// MeanVec returns the first latent row of the mean. Convenient for the
// common single-latent case.
func (p *Prediction) MeanVec() []float64 { return p.Mean.RawRowView(0) }

// VarianceVec returns the first latent row of the diagonal variance.
func (p *Prediction) VarianceVec() []float64 { return p.Variance.RawRowView(0) }

// CholeskyKuu factorizes Kuu + jitter*I for the inducing inputs Xu,
// returning the lower Cholesky factor. A factorization failure surfaces as
// a NumericalError; no fallback is attempted.
func CholeskyKuu(Xu *mat.Dense, k kernel.Kernel, jitter float64) (*mat.TriDense, error) {
	m, _ := Xu.Dims()
	K := k.Matrix(Xu, nil)

	sym := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		sym.SetSym(i, i, K.At(i, i)+jitter)
		for j := i + 1; j < m; j++ {
			sym.SetSym(i, j, 0.5*(K.At(i, j)+K.At(j, i)))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return nil, &NumericalError{Op: "cholesky(Kuu)", Dim: m, Jitter: jitter}
	}
	L := mat.NewTriDense(m, mat.Lower, nil)
	chol.LTo(L)
	return L, nil
}

// Conditional computes the sparse-GP predictive distribution at Xnew.
//
// uLoc holds the posterior mean of the inducing values, one latent process
// per row. uScale optionally holds one lower-triangular posterior scale
// factor per latent row; nil skips the variational correction term. Luu may
// carry a precomputed Cholesky factor of Kuu + jitter*I; when nil it is
// computed here. fullCov selects a full covariance matrix per latent row
// instead of the diagonal variance.
//
// In diagonal mode, variances are floored at exactly zero after the
// correction term is added. The computation is deterministic.
func Conditional(Xnew, Xu *mat.Dense, k kernel.Kernel, uLoc *mat.Dense, uScale []*mat.TriDense, Luu *mat.TriDense, fullCov bool, jitter float64) (*Prediction, error) {
	n, dNew := Xnew.Dims()
	m, d := Xu.Dims()
	if dNew != d {
		return nil, &ShapeError{Op: "conditional", Want: d, Got: dNew}
	}
	latent, locCols := uLoc.Dims()
	if locCols != m {
		return nil, fmt.Errorf("gp: conditional: posterior mean has %d columns, want %d inducing points", locCols, m)
	}
	if uScale != nil && len(uScale) != latent {
		return nil, fmt.Errorf("gp: conditional: %d scale factors for %d latent processes", len(uScale), latent)
	}

	if Luu == nil {
		var err error
		Luu, err = CholeskyKuu(Xu, k, jitter)
		if err != nil {
			return nil, err
		}
	}

	// W = Luu^{-1} Kuf, shared across latent processes.
	Kuf := k.Matrix(Xu, Xnew)
	var W mat.Dense
	if err := Luu.SolveTo(&W, false, Kuf); err != nil {
		return nil, &NumericalError{Op: "solve(Luu, Kuf)", Dim: m, Jitter: jitter}
	}

	pred := &Prediction{Mean: mat.NewDense(latent, n, nil)}
	if fullCov {
		pred.Covariance = make([]*mat.SymDense, latent)
	} else {
		pred.Variance = mat.NewDense(latent, n, nil)
	}

	// Prior covariance of f at Xnew, minus the part explained by u.
	var base *mat.Dense
	var baseDiag []float64
	if fullCov {
		Kff := k.Matrix(Xnew, nil)
		var WtW mat.Dense
		WtW.Mul(W.T(), &W)
		base = &mat.Dense{}
		base.Sub(Kff, &WtW)
	} else {
		kdiag := k.Diag(Xnew)
		baseDiag = make([]float64, n)
		for i := 0; i < n; i++ {
			s := 0.0
			for r := 0; r < m; r++ {
				w := W.At(r, i)
				s += w * w
			}
			baseDiag[i] = kdiag[i] - s
		}
	}

	var v mat.Dense
	var meanVec mat.VecDense
	for l := 0; l < latent; l++ {
		// mean_l = W^T (Luu^{-1} uLoc_l)
		locL := mat.NewVecDense(m, uLoc.RawRowView(l))
		if err := Luu.SolveTo(&v, false, locL); err != nil {
			return nil, &NumericalError{Op: "solve(Luu, uLoc)", Dim: m, Jitter: jitter}
		}
		meanVec.MulVec(W.T(), v.ColView(0))
		for i := 0; i < n; i++ {
			pred.Mean.Set(l, i, meanVec.AtVec(i))
		}

		// A = (Luu^{-1} S_l)^T W carries the posterior uncertainty of u.
		var A *mat.Dense
		if uScale != nil {
			var V mat.Dense
			if err := Luu.SolveTo(&V, false, uScale[l]); err != nil {
				return nil, &NumericalError{Op: "solve(Luu, uScale)", Dim: m, Jitter: jitter}
			}
			A = &mat.Dense{}
			A.Mul(V.T(), &W)
		}

		if fullCov {
			var cov mat.Dense
			cov.CloneFrom(base)
			if A != nil {
				var AtA mat.Dense
				AtA.Mul(A.T(), A)
				cov.Add(&cov, &AtA)
			}
			sym := mat.NewSymDense(n, nil)
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					sym.SetSym(i, j, 0.5*(cov.At(i, j)+cov.At(j, i)))
				}
			}
			pred.Covariance[l] = sym
			continue
		}

		for i := 0; i < n; i++ {
			vi := baseDiag[i]
			if A != nil {
				for r := 0; r < m; r++ {
					a := A.At(r, i)
					vi += a * a
				}
			}
			if vi < 0 {
				vi = 0
			}
			pred.Variance.Set(l, i, vi)
		}
	}

	return pred, nil
}
