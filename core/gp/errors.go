package gp

import "fmt"

// NumericalError reports a failed matrix factorization: a covariance matrix
// that is not positive definite even after jitter was added to its
// diagonal. It is never retried internally; callers may retry with a larger
// jitter.
type NumericalError struct {
	Op     string
	Dim    int
	Jitter float64
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("gp: %s: %dx%d covariance is not positive definite (jitter %g)", e.Op, e.Dim, e.Dim, e.Jitter)
}

// ShapeError reports incompatible input dimensions, raised before any
// computation touches the inputs.
type ShapeError struct {
	Op   string
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("gp: %s: input has %d feature columns, want %d", e.Op, e.Got, e.Want)
}
