package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transition packages together a single transition in an environment:
// the state, the action taken in it, the reward received, and the next
// state. Done is true if the next state is terminal.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	Discount  float64
	NextState mat.Vector
	Done      bool
}

// NewTransition returns the Transition that occurs when action is
// taken at step and the environment moves to nextStep.
func NewTransition(step TimeStep, action mat.Vector,
	nextStep TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		Discount:  nextStep.Discount,
		NextState: nextStep.Observation,
		Done:      nextStep.Last(),
	}
}

func (t Transition) String() string {
	return fmt.Sprintf("Transition | Reward: %.2f | Discount: %.2f | "+
		"Done: %v", t.Reward, t.Discount, t.Done)
}
