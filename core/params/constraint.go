package params

import (
	"fmt"
	"math"
)

// Constraint restricts the admissible values of a parameter and defines a
// smooth bijection between the constrained value and an unconstrained
// "free" vector. Optimizers always work in the free space, so any free
// vector maps back to a valid constrained value; direct writes in the
// constrained space are validated by Check.
type Constraint interface {
	// Name identifies the constraint in snapshots and error messages.
	Name() string

	// Check reports whether value (with the given shape) satisfies the
	// constraint. A nil return means the value is admissible.
	Check(value []float64, shape []int) error

	// FreeDim returns the dimension of the free vector for a parameter of
	// the given shape.
	FreeDim(shape []int) int

	// ToFree maps a constrained value into free space.
	ToFree(value []float64, shape []int) []float64

	// FromFree maps a free vector back into constrained space.
	FromFree(free []float64, shape []int) []float64
}

// ConstraintViolationError reports a rejected constrained-space write. The
// stored parameter value is unchanged when this error is returned.
type ConstraintViolationError struct {
	Param      string
	Constraint string
	Reason     string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("params: constraint %q violated for %q: %s", e.Constraint, e.Param, e.Reason)
}

// None is the identity constraint: every finite value is admissible and the
// free space equals the constrained space.
type None struct{}

func (None) Name() string { return "none" }

func (None) Check(value []float64, shape []int) error { return nil }

func (None) FreeDim(shape []int) int { return sizeOf(shape) }

func (None) ToFree(value []float64, shape []int) []float64 {
	out := make([]float64, len(value))
	copy(out, value)
	return out
}

func (None) FromFree(free []float64, shape []int) []float64 {
	out := make([]float64, len(free))
	copy(out, free)
	return out
}

// Positive constrains every element to be strictly positive. The free space
// is elementwise logarithmic.
type Positive struct{}

func (Positive) Name() string { return "positive" }

func (Positive) Check(value []float64, shape []int) error {
	for i, v := range value {
		if !(v > 0) {
			return fmt.Errorf("element %d is %v, want > 0", i, v)
		}
	}
	return nil
}

func (Positive) FreeDim(shape []int) int { return sizeOf(shape) }

func (Positive) ToFree(value []float64, shape []int) []float64 {
	out := make([]float64, len(value))
	for i, v := range value {
		out[i] = math.Log(v)
	}
	return out
}

func (Positive) FromFree(free []float64, shape []int) []float64 {
	out := make([]float64, len(free))
	for i, v := range free {
		out[i] = math.Exp(v)
	}
	return out
}

// LowerCholesky constrains a stacked batch of square matrices to be lower
// triangular with strictly positive diagonals, so that L * L^T is always a
// valid positive-definite covariance. The last two shape entries are the
// matrix dimensions; leading entries are batch dimensions.
//
// Free space is the stacked lower triangle of each matrix with the diagonal
// in log space: batch * dim*(dim+1)/2 entries.
type LowerCholesky struct{}

func (LowerCholesky) Name() string { return "lower_cholesky" }

func (LowerCholesky) Check(value []float64, shape []int) error {
	batch, dim, err := triShape(shape)
	if err != nil {
		return err
	}
	for b := 0; b < batch; b++ {
		block := value[b*dim*dim : (b+1)*dim*dim]
		for i := 0; i < dim; i++ {
			if !(block[i*dim+i] > 0) {
				return fmt.Errorf("batch %d diagonal %d is %v, want > 0", b, i, block[i*dim+i])
			}
			for j := i + 1; j < dim; j++ {
				if block[i*dim+j] != 0 {
					return fmt.Errorf("batch %d entry (%d,%d) is %v, want 0 above the diagonal", b, i, j, block[i*dim+j])
				}
			}
		}
	}
	return nil
}

func (LowerCholesky) FreeDim(shape []int) int {
	batch, dim, err := triShape(shape)
	if err != nil {
		return 0
	}
	return batch * dim * (dim + 1) / 2
}

func (LowerCholesky) ToFree(value []float64, shape []int) []float64 {
	batch, dim, _ := triShape(shape)
	out := make([]float64, 0, batch*dim*(dim+1)/2)
	for b := 0; b < batch; b++ {
		block := value[b*dim*dim : (b+1)*dim*dim]
		for i := 0; i < dim; i++ {
			for j := 0; j < i; j++ {
				out = append(out, block[i*dim+j])
			}
			out = append(out, math.Log(block[i*dim+i]))
		}
	}
	return out
}

func (LowerCholesky) FromFree(free []float64, shape []int) []float64 {
	batch, dim, _ := triShape(shape)
	out := make([]float64, batch*dim*dim)
	k := 0
	for b := 0; b < batch; b++ {
		block := out[b*dim*dim : (b+1)*dim*dim]
		for i := 0; i < dim; i++ {
			for j := 0; j < i; j++ {
				block[i*dim+j] = free[k]
				k++
			}
			block[i*dim+i] = math.Exp(free[k])
			k++
		}
	}
	return out
}

// triShape splits a shape into (batch, dim) for a stacked-square-matrix
// parameter, validating that the trailing dimensions form a square.
func triShape(shape []int) (batch, dim int, err error) {
	if len(shape) < 2 {
		return 0, 0, fmt.Errorf("shape %v has no matrix dimensions", shape)
	}
	dim = shape[len(shape)-1]
	if shape[len(shape)-2] != dim {
		return 0, 0, fmt.Errorf("shape %v is not square in its trailing dimensions", shape)
	}
	batch = 1
	for _, s := range shape[:len(shape)-2] {
		batch *= s
	}
	return batch, dim, nil
}

func sizeOf(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
