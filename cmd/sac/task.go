package main

import (
	"math"

	ts "github.com/samuelfneumann/sac/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// task is a synthetic continuous control problem. Observations are
// drawn uniformly from [-1, 1] and the reward is the negative squared
// distance between the action and a fixed target function of the
// observation. Episodes end after a fixed number of steps.
type task struct {
	obsLen    int
	actionDim int
	maxSteps  int

	dist    distuv.Uniform
	current ts.TimeStep
}

func newTask(obsLen, actionDim, maxSteps int, seed uint64) *task {
	src := rand.NewSource(seed)
	return &task{
		obsLen:    obsLen,
		actionDim: actionDim,
		maxSteps:  maxSteps,
		dist:      distuv.Uniform{Min: -1, Max: 1, Src: src},
	}
}

func (t *task) observation() *mat.VecDense {
	obs := make([]float64, t.obsLen)
	for i := range obs {
		obs[i] = t.dist.Rand()
	}
	return mat.NewVecDense(t.obsLen, obs)
}

// target returns the optimal action in observation obs
func (t *task) target(obs mat.Vector) []float64 {
	target := make([]float64, t.actionDim)
	for i := range target {
		target[i] = math.Tanh(obs.AtVec(i % obs.Len()))
	}
	return target
}

// Reset starts a new episode and returns its first timestep
func (t *task) Reset() ts.TimeStep {
	t.current = ts.New(ts.First, 0, 1, t.observation(), 0)
	return t.current
}

// Step takes action in the current timestep and returns the next one
func (t *task) Step(action mat.Vector) ts.TimeStep {
	target := t.target(t.current.Observation)
	reward := 0.0
	for i, want := range target {
		d := action.AtVec(i) - want
		reward -= d * d
	}

	n := t.current.Number + 1
	stepType, discount := ts.Mid, 1.0
	if n >= t.maxSteps {
		stepType, discount = ts.Last, 0
	}
	t.current = ts.New(stepType, reward, discount, t.observation(), n)
	return t.current
}
