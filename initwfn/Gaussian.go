package initwfn

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// GaussianConfig draws each weight independently from N(Mean, StdDev²).
// It is the default weight initializer of the SAC networks, with a
// small standard deviation so that the initial policy is close to
// uniform over the action space and the initial action values are
// close to zero.
type GaussianConfig struct {
	Mean, StdDev float64
}

// NewGaussian returns a weight initializer drawing from N(mean, stddev²)
func NewGaussian(mean, stddev float64) (*InitWFn, error) {
	g := GaussianConfig{
		Mean:   mean,
		StdDev: stddev,
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("newGaussian: %v", err)
	}

	return newInitWFn(g)
}

// Validate returns an error if the distribution is degenerate
func (g GaussianConfig) Validate() error {
	if math.IsNaN(g.Mean) || math.IsInf(g.Mean, 0) {
		return fmt.Errorf("mean must be finite but got %v", g.Mean)
	}
	if !(g.StdDev > 0) || math.IsInf(g.StdDev, 0) {
		return fmt.Errorf("standard deviation must be positive and "+
			"finite but got %v", g.StdDev)
	}
	return nil
}

// Type returns Gaussian
func (g GaussianConfig) Type() Type {
	return Gaussian
}

// Create returns the Gorgonia InitWFn
func (g GaussianConfig) Create() G.InitWFn {
	return G.Gaussian(g.Mean, g.StdDev)
}
