// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Clip clips a floating point to within a minimum and maximum value.
// If the floating point exceeds max, then the function returns the max
// If min exceeds the floating point, then the function returns the min
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// ElemMin stores the element-wise minimum of a and b in dst and
// returns dst. If dst is nil, a new slice is allocated.
func ElemMin(dst, a, b []float64) []float64 {
	if len(a) != len(b) {
		panic("elemMin: slices must have the same length")
	}
	if dst == nil {
		dst = make([]float64, len(a))
	}
	for i := range a {
		dst[i] = math.Min(a[i], b[i])
	}
	return dst
}

// Ones returns a slice of float64 of size n, filled with ones.
func Ones(n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = 1.0
	}
	return o
}

// AllFinite returns whether each value in each slice is neither NaN
// nor infinite.
func AllFinite(values ...[]float64) bool {
	for _, v := range values {
		if floats.HasNaN(v) {
			return false
		}
		for _, x := range v {
			if math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}
