package solver

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/sac/utils/floatutils"
	G "gorgonia.org/gorgonia"
)

// AdamSolver implements the Adam optimization algorithm over
// G.ValueGrads. Unlike the Gorgonia Adam solver, its learning rate
// can be changed between steps, which is needed for learning rate
// schedules.
//
// Gradients are zeroed after each successful step.
type AdamSolver struct {
	learnRate float64
	eps       float64
	beta1     float64
	beta2     float64
	clip      float64

	iter    int
	moments map[G.ValueGrad]*adamMoments
}

// adamMoments stores the first and second moment estimates of a
// single learnable
type adamMoments struct {
	m, v []float64
}

// NewAdamSolver returns a new AdamSolver. If clip > 0, each gradient
// element is clipped to [-clip, clip] before the moments are updated.
func NewAdamSolver(learnRate, eps, beta1, beta2, clip float64) *AdamSolver {
	return &AdamSolver{
		learnRate: learnRate,
		eps:       eps,
		beta1:     beta1,
		beta2:     beta2,
		clip:      clip,
		moments:   make(map[G.ValueGrad]*adamMoments),
	}
}

// SetLearnRate sets the learning rate of the solver
func (a *AdamSolver) SetLearnRate(learnRate float64) {
	a.learnRate = learnRate
}

// LearnRate returns the current learning rate of the solver
func (a *AdamSolver) LearnRate() float64 {
	return a.learnRate
}

// Iterations returns the number of steps taken by the solver
func (a *AdamSolver) Iterations() int {
	return a.iter
}

// Step takes a single gradient step on each learnable in model. If
// any gradient is not finite, no learnable is changed and an error
// wrapping ErrNonFinite is returned.
func (a *AdamSolver) Step(model []G.ValueGrad) error {
	weights := make([][]float64, len(model))
	grads := make([][]float64, len(model))
	for i, vg := range model {
		w, g, err := gradData(vg)
		if err != nil {
			return fmt.Errorf("step: %v", err)
		}
		if !floatutils.AllFinite(g) {
			return fmt.Errorf("step: gradient of %v: %w", vg, ErrNonFinite)
		}
		weights[i], grads[i] = w, g
	}

	a.iter++
	t := float64(a.iter)
	correction1 := 1 - math.Pow(a.beta1, t)
	correction2 := 1 - math.Pow(a.beta2, t)
	stepSize := a.learnRate * math.Sqrt(correction2) / correction1

	for i, vg := range model {
		w, g := weights[i], grads[i]

		moments, ok := a.moments[vg]
		if !ok {
			moments = &adamMoments{
				m: make([]float64, len(w)),
				v: make([]float64, len(w)),
			}
			a.moments[vg] = moments
		}

		for j := range w {
			grad := g[j]
			if a.clip > 0 {
				grad = floatutils.Clip(grad, -a.clip, a.clip)
			}

			moments.m[j] = a.beta1*moments.m[j] + (1-a.beta1)*grad
			moments.v[j] = a.beta2*moments.v[j] + (1-a.beta2)*grad*grad
			w[j] -= stepSize * moments.m[j] / (math.Sqrt(moments.v[j]) + a.eps)

			g[j] = 0
		}
	}

	return nil
}
