// Package kernel provides covariance functions for Gaussian process models.
//
// A kernel is consumed as a black-box covariance oracle: given two point
// sets it returns the matrix of pairwise covariances. Implementations must
// be symmetric positive-semidefinite when both point sets coincide.
package kernel

import (
	"gonum.org/v1/gonum/mat"
)

// Kernel is a covariance function over the rows of input matrices.
// Rows are points; columns are input features.
type Kernel interface {
	// Matrix evaluates the covariance between every row pair of a and b
	// into an |a| x |b| matrix. A nil b is treated as b = a, in which case
	// the result is symmetric.
	Matrix(a, b *mat.Dense) *mat.Dense

	// Diag evaluates k(x, x) for every row x of a.
	Diag(a *mat.Dense) []float64
}
