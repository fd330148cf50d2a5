package timestep

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestWithObservation(t *testing.T) {
	step := New(Mid, 1.5, 0.9, mat.NewVecDense(2, []float64{1, 2}), 3)
	processed := step.WithObservation(mat.NewVecDense(3, []float64{4, 5, 6}))

	if processed.StepType() != Mid || processed.Reward != 1.5 ||
		processed.Discount != 0.9 || processed.Number != 3 {
		t.Errorf("fields other than the observation changed: %v", processed)
	}
	if step.Observation.Len() != 2 {
		t.Error("original observation was replaced")
	}

	features := processed.Features()
	want := []float64{4, 5, 6}
	for i := range want {
		if features[i] != want[i] {
			t.Errorf("feature %v: want(%v) have(%v)", i, want[i], features[i])
		}
	}

	// Features are a copy
	features[0] = 100
	if processed.Observation.AtVec(0) != 4 {
		t.Error("modifying features changed the observation")
	}
}

func TestFeaturesWithoutObservation(t *testing.T) {
	if features := New(First, 0, 1, nil, 0).Features(); features != nil {
		t.Errorf("want(nil) features have(%v)", features)
	}
}

func TestTransition(t *testing.T) {
	first := New(First, 0, 1, mat.NewVecDense(1, []float64{0}), 0)
	last := New(Last, 2, 0, mat.NewVecDense(1, []float64{1}), 1)
	action := mat.NewVecDense(1, []float64{-1})

	tr := NewTransition(first, action, last)
	if !tr.Done || tr.Reward != 2 || tr.Discount != 0 {
		t.Errorf("unexpected transition %v", tr)
	}
	if tr.State.AtVec(0) != 0 || tr.NextState.AtVec(0) != 1 {
		t.Error("states not taken from the timesteps")
	}
	if !first.First() || first.Last() || !last.Last() {
		t.Error("step types not reported")
	}
}
