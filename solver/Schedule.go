package solver

import (
	"fmt"
	"math"
)

// PolynomialDecay implements a polynomial learning rate decay. For
// step t, the learning rate is:
//
//	(Initial - End) * (1 - min(t, DecaySteps) / DecaySteps)^Power + End
//
// After DecaySteps steps, the learning rate stays at End.
type PolynomialDecay struct {
	Initial    float64
	End        float64
	DecaySteps int
	Power      float64
}

// NewPolynomialDecay returns a new PolynomialDecay schedule
func NewPolynomialDecay(initial, end float64, decaySteps int,
	power float64) (PolynomialDecay, error) {
	p := PolynomialDecay{
		Initial:    initial,
		End:        end,
		DecaySteps: decaySteps,
		Power:      power,
	}
	return p, p.Validate()
}

// Validate returns an error if the schedule is not legal
func (p PolynomialDecay) Validate() error {
	if p.DecaySteps <= 0 {
		return fmt.Errorf("validate: decay steps must be positive but got %v",
			p.DecaySteps)
	}
	if p.End <= 0 || p.Initial < p.End {
		return fmt.Errorf("validate: require 0 < end (%v) <= initial (%v)",
			p.End, p.Initial)
	}
	if p.Power <= 0 {
		return fmt.Errorf("validate: power must be positive but got %v",
			p.Power)
	}
	return nil
}

// At returns the learning rate at step t. Negative steps are treated
// as step 0.
func (p PolynomialDecay) At(t int) float64 {
	if t < 0 {
		t = 0
	}
	if t > p.DecaySteps {
		t = p.DecaySteps
	}
	frac := 1 - float64(t)/float64(p.DecaySteps)
	return (p.Initial-p.End)*math.Pow(frac, p.Power) + p.End
}
