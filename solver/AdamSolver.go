package solver

import G "gorgonia.org/gorgonia"

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
	Clip     float64 // <= 0 if no clipping
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, 0)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2, clip float64) (*Solver,
	error) {
	adam := AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Clip:     clip,
	}

	return newSolver(Adam, adam)
}

// Create returns a new Adam Solver as described by the AdamConfig
func (a AdamConfig) Create() G.Solver {
	return NewAdamSolver(a.StepSize, a.Epsilon, a.Beta1, a.Beta2, a.Clip)
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// WithLearnRate returns a copy of the config with a new step size
func (a AdamConfig) WithLearnRate(learnRate float64) Config {
	a.StepSize = learnRate
	return a
}
