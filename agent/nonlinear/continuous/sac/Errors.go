package sac

import "errors"

var (
	// ErrDimension is returned when an observation, action, or batch of
	// transitions has the wrong shape. It is always returned before
	// any computational graph is run.
	ErrDimension = errors.New("dimension mismatch")

	// ErrNumericalInstability is returned when a loss or gradient is
	// NaN or infinite. The learning step is aborted, and parameters
	// updated earlier in the same step are not rolled back.
	ErrNumericalInstability = errors.New("numerical instability")
)
