package policy

import (
	"math"
	"testing"

	"github.com/samuelfneumann/sac/network"
	"github.com/samuelfneumann/sac/timestep"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

const (
	features   = 4
	actionDims = 2
)

func newPolicy(t *testing.T, batch int, stdOffset float64,
	seed uint64) *ClippedGaussianTreeMLP {
	t.Helper()
	pol, err := NewClippedGaussianTreeMLP(
		features,
		actionDims,
		batch,
		G.NewGraph(),
		[]int{16},
		[]bool{true},
		[]*network.Activation{network.ReLU()},
		[][]int{{8, actionDims}, {8, actionDims}},
		[][]bool{{true, true}, {true, true}},
		[][]*network.Activation{
			{network.ReLU(), network.TanH()},
			{network.ReLU(), network.Sigmoid()},
		},
		G.Gaussian(0, 0.1),
		G.ValuesOf(0.1),
		stdOffset,
		seed,
	)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	t.Cleanup(func() { pol.Close() })
	return pol
}

func firstStep(obs []float64) timestep.TimeStep {
	return timestep.New(timestep.First, 0, 1, mat.NewVecDense(len(obs), obs), 0)
}

func TestActionsClipped(t *testing.T) {
	// A large offset pushes most samples outside of [-1, 1]
	pol := newPolicy(t, 1, 5.0, 1)
	step := firstStep([]float64{0.1, -0.2, 0.3, -0.4})

	clipped := 0
	for i := 0; i < 200; i++ {
		action, err := pol.SelectAction(step)
		if err != nil {
			t.Fatal(err)
		}
		if action.Len() != actionDims {
			t.Fatalf("want(%v) action dimensions have(%v)", actionDims,
				action.Len())
		}
		for j := 0; j < action.Len(); j++ {
			a := action.AtVec(j)
			if a < -1 || a > 1 {
				t.Fatalf("action %v outside of [-1, 1]", a)
			}
			if math.Abs(a) == 1 {
				clipped++
			}
		}
	}
	if clipped == 0 {
		t.Error("expected some actions to be clipped to the boundary")
	}
}

func TestEvalDeterministic(t *testing.T) {
	pol := newPolicy(t, 1, 0.01, 2)
	step := firstStep([]float64{1, 2, 3, 4})

	pol.Eval()
	if !pol.IsEval() {
		t.Fatal("policy should be in evaluation mode")
	}
	first, err := pol.SelectAction(step)
	if err != nil {
		t.Fatal(err)
	}
	second, err := pol.SelectAction(step)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(first, second) {
		t.Errorf("evaluation actions differ: %v != %v", mat.Formatted(first.T()),
			mat.Formatted(second.T()))
	}

	pol.Train()
	sampled, err := pol.SelectAction(step)
	if err != nil {
		t.Fatal(err)
	}
	if mat.Equal(first, sampled) {
		t.Error("sampled action should differ from the mean action")
	}
}

func TestSameSeedSameActions(t *testing.T) {
	pol1 := newPolicy(t, 1, 0.5, 11)
	pol2 := newPolicy(t, 1, 0.5, 11)
	if err := network.Set(pol2.Network(), pol1.Network()); err != nil {
		t.Fatal(err)
	}
	step := firstStep([]float64{0.5, 0.5, 0.5, 0.5})

	for i := 0; i < 5; i++ {
		a1, err := pol1.SelectAction(step)
		if err != nil {
			t.Fatal(err)
		}
		a2, err := pol2.SelectAction(step)
		if err != nil {
			t.Fatal(err)
		}
		if !mat.Equal(a1, a2) {
			t.Fatalf("step %v: actions differ", i)
		}
	}
}

func TestLogProb(t *testing.T) {
	const batch = 4
	pol := newPolicy(t, batch, 0.5, 3)

	states := make([]float64, batch*features)
	for i := range states {
		states[i] = float64(i%5) / 5
	}
	if err := pol.SetInput(states); err != nil {
		t.Fatal(err)
	}
	if _, err := pol.SampleEpsilon(); err != nil {
		t.Fatal(err)
	}

	vm := G.NewTapeMachine(pol.Network().Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	mean, std, action := pol.Mean(), pol.Std(), pol.Action()
	logProb := pol.LogProb()
	if len(logProb) != batch*actionDims {
		t.Fatalf("want(%v) log probabilities have(%v)", batch*actionDims,
			len(logProb))
	}

	// Each action dimension has its own log density
	for k := range logProb {
		z := (action[k] - mean[k]) / std[k]
		want := -0.5*z*z - math.Log(std[k]) - 0.5*math.Log(2*math.Pi)
		if math.Abs(want-logProb[k]) > 1e-9 {
			t.Errorf("element %v: want(%v) have(%v)", k, want, logProb[k])
		}
	}

	for _, s := range std {
		if s < 0.5 {
			t.Errorf("standard deviation %v below offset", s)
		}
	}

	wantEntropy := 0.0
	for _, s := range std {
		wantEntropy += 0.5 + 0.5*math.Log(2*math.Pi) + math.Log(s)
	}
	wantEntropy /= float64(len(std))
	if math.Abs(wantEntropy-pol.Entropy()) > 1e-9 {
		t.Errorf("entropy: want(%v) have(%v)", wantEntropy, pol.Entropy())
	}
}

func TestInvalidInputs(t *testing.T) {
	pol := newPolicy(t, 1, 0.01, 4)
	if _, err := pol.SelectAction(firstStep([]float64{1, 2})); err == nil {
		t.Error("expected error for wrong observation size")
	}
	if err := pol.SetEpsilon([]float64{1}); err == nil {
		t.Error("expected error for wrong noise size")
	}

	batched := newPolicy(t, 3, 0.01, 4)
	step := firstStep([]float64{1, 2, 3, 4})
	if _, err := batched.SelectAction(step); err == nil {
		t.Error("expected error selecting actions with batch size > 1")
	}
}

func TestNonPositiveOffset(t *testing.T) {
	for _, offset := range []float64{0, -0.5} {
		_, err := NewClippedGaussianTreeMLP(
			features,
			actionDims,
			1,
			G.NewGraph(),
			[]int{16},
			[]bool{true},
			[]*network.Activation{network.ReLU()},
			[][]int{{actionDims}, {actionDims}},
			[][]bool{{true}, {true}},
			[][]*network.Activation{{network.TanH()}, {network.Sigmoid()}},
			G.Gaussian(0, 0.1),
			G.Zeroes(),
			offset,
			1,
		)
		if err == nil {
			t.Errorf("expected error for offset %v", offset)
		}
	}
}

func TestCloneWithBatch(t *testing.T) {
	pol := newPolicy(t, 1, 0.01, 5)
	clone, err := pol.CloneWithBatch(6, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer clone.Close()

	if clone.BatchSize() != 6 {
		t.Errorf("want(6) batch size have(%v)", clone.BatchSize())
	}
	if clone.Network().Graph() == pol.Network().Graph() {
		t.Error("clone should live in a new graph")
	}

	want := network.Weights(pol.Network())
	have := network.Weights(clone.Network())
	for i := range want {
		for j := range want[i] {
			if want[i][j] != have[i][j] {
				t.Fatalf("learnable %v differs after cloning", i)
			}
		}
	}
}
