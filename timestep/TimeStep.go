// Package timestep holds the data passed between an environment and
// an agent: single timesteps and the transitions between them.
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType is the position of a TimeStep within its episode
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "first"
	case Last:
		return "last"
	default:
		return "mid"
	}
}

// TimeStep is what an agent observes after each environment step. The
// reward and discount are those received on entering the step, and
// are ignored on the first step of an episode. Number counts the
// steps taken in the episode, starting at 0.
type TimeStep struct {
	stepType    StepType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
}

// New returns a new TimeStep
func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	return TimeStep{t, r, d, o, n}
}

// WithObservation returns a copy of t which observes o instead. Agents
// use it to hand processed observations to their policies.
func (t TimeStep) WithObservation(o mat.Vector) TimeStep {
	t.Observation = o
	return t
}

// Features returns a copy of the observation as a slice, or nil if
// there is no observation
func (t TimeStep) Features() []float64 {
	if t.Observation == nil {
		return nil
	}
	features := make([]float64, t.Observation.Len())
	for i := range features {
		features[i] = t.Observation.AtVec(i)
	}
	return features
}

// StepType returns the position of t within its episode
func (t TimeStep) StepType() StepType { return t.stepType }

// First returns whether t starts an episode
func (t TimeStep) First() bool { return t.stepType == First }

// Last returns whether t ends an episode
func (t TimeStep) Last() bool { return t.stepType == Last }

func (t TimeStep) String() string {
	return fmt.Sprintf("TimeStep %d (%v) | Reward: %.2f | Discount: %.2f",
		t.Number, t.stepType, t.Reward, t.Discount)
}
