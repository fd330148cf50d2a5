package solver

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// valueGrad is a learnable outside of any computational graph
type valueGrad struct {
	value, grad *tensor.Dense
}

func newValueGrad(value, grad []float64) *valueGrad {
	return &valueGrad{
		value: tensor.New(tensor.WithShape(1, len(value)),
			tensor.WithBacking(value)),
		grad: tensor.New(tensor.WithShape(1, len(grad)),
			tensor.WithBacking(grad)),
	}
}

func (v *valueGrad) Value() G.Value         { return v.value }
func (v *valueGrad) Grad() (G.Value, error) { return v.grad, nil }
func (v *valueGrad) weights() []float64     { return v.value.Data().([]float64) }
func (v *valueGrad) gradients() []float64   { return v.grad.Data().([]float64) }

func TestAdamFirstStep(t *testing.T) {
	adam := NewAdamSolver(0.1, 1e-8, 0.9, 0.999, 0)
	vg := newValueGrad([]float64{1, 1}, []float64{2, -0.5})

	if err := adam.Step([]G.ValueGrad{vg}); err != nil {
		t.Fatal(err)
	}

	// With bias correction, the first step moves each weight by the
	// learning rate in the direction opposite the gradient
	want := []float64{0.9, 1.1}
	for i, w := range vg.weights() {
		if math.Abs(w-want[i]) > 1e-6 {
			t.Errorf("weight %v: want(%v) have(%v)", i, want[i], w)
		}
	}

	for _, g := range vg.gradients() {
		if g != 0 {
			t.Errorf("gradient not zeroed: %v", g)
		}
	}

	if adam.Iterations() != 1 {
		t.Errorf("iterations: want(1) have(%v)", adam.Iterations())
	}
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	g := G.NewGraph()
	w := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 2), G.WithName("w"),
		G.WithInit(G.ValuesOf(3.0)))
	loss := G.Must(G.Sum(G.Must(G.Square(w))))
	if _, err := G.Grad(loss, w); err != nil {
		t.Fatal(err)
	}
	var lossVal G.Value
	G.Read(loss, &lossVal)

	vm := G.NewTapeMachine(g, G.BindDualValues(w))
	defer vm.Close()

	s, err := NewDefaultAdam(0.1)
	if err != nil {
		t.Fatal(err)
	}

	var first, last float64
	for i := 0; i < 500; i++ {
		if err := vm.RunAll(); err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = lossVal.Data().(float64)
		}
		last = lossVal.Data().(float64)
		if err := s.Step([]G.ValueGrad{w}); err != nil {
			t.Fatal(err)
		}
		vm.Reset()
	}

	if last >= first/10 {
		t.Errorf("loss did not decrease: first(%v) last(%v)", first, last)
	}
}

func TestAdamNonFinite(t *testing.T) {
	adam := NewAdamSolver(0.1, 1e-8, 0.9, 0.999, 0)
	good := newValueGrad([]float64{1}, []float64{1})
	bad := newValueGrad([]float64{1}, []float64{math.NaN()})

	err := adam.Step([]G.ValueGrad{good, bad})
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("want ErrNonFinite, have %v", err)
	}
	if good.weights()[0] != 1 || bad.weights()[0] != 1 {
		t.Error("weights changed on non-finite gradient")
	}
	if adam.Iterations() != 0 {
		t.Error("failed step counted as an iteration")
	}
}

func TestSetLearnRate(t *testing.T) {
	adam, err := NewDefaultAdam(0.1)
	if err != nil {
		t.Fatal(err)
	}
	if err := adam.SetLearnRate(0.01); err != nil {
		t.Fatal(err)
	}
	if lr := adam.Solver.(*AdamSolver).LearnRate(); lr != 0.01 {
		t.Errorf("adam: want(0.01) have(%v)", lr)
	}

	vanilla, err := NewVanilla(0.1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := vanilla.SetLearnRate(0.5); err != nil {
		t.Fatal(err)
	}
	vg := newValueGrad([]float64{1}, []float64{1})
	if err := vanilla.Step([]G.ValueGrad{vg}); err != nil {
		t.Fatal(err)
	}
	if w := vg.weights()[0]; math.Abs(w-0.5) > 1e-12 {
		t.Errorf("vanilla: want(0.5) have(%v)", w)
	}

	for _, lr := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := vanilla.SetLearnRate(lr); err == nil {
			t.Errorf("expected error for learning rate %v", lr)
		}
	}
}

func TestCloneHasFreshState(t *testing.T) {
	s, err := NewDefaultAdam(0.1)
	if err != nil {
		t.Fatal(err)
	}
	vg := newValueGrad([]float64{1}, []float64{1})
	if err := s.Step([]G.ValueGrad{vg}); err != nil {
		t.Fatal(err)
	}

	clone := s.Clone()
	if it := clone.Solver.(*AdamSolver).Iterations(); it != 0 {
		t.Errorf("clone iterations: want(0) have(%v)", it)
	}
}

func TestUnmarshalJSON(t *testing.T) {
	data := []byte(`{"Type": "Adam", "Config": {"StepSize": 0.0005,
		"Epsilon": 1e-8, "Beta1": 0.9, "Beta2": 0.999}}`)

	var s Solver
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatal(err)
	}
	if s.Type != Adam {
		t.Errorf("type: want(%v) have(%v)", Adam, s.Type)
	}
	if lr := s.Solver.(*AdamSolver).LearnRate(); lr != 0.0005 {
		t.Errorf("learning rate: want(0.0005) have(%v)", lr)
	}

	if err := json.Unmarshal([]byte(`{"Type": "SGDR"}`), &s); err == nil {
		t.Error("expected error for unknown solver type")
	}
}

func TestPolynomialDecay(t *testing.T) {
	p, err := NewPolynomialDecay(5e-4, 1e-10, 100, 1)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		step int
		want float64
	}{
		{-5, 5e-4},
		{0, 5e-4},
		{50, (5e-4-1e-10)*0.5 + 1e-10},
		{100, 1e-10},
		{1000, 1e-10},
	}
	for _, test := range tests {
		if have := p.At(test.step); math.Abs(have-test.want) > 1e-15 {
			t.Errorf("step %v: want(%v) have(%v)", test.step, test.want, have)
		}
	}

	if _, err := NewPolynomialDecay(1, 1e-10, 0, 1); err == nil {
		t.Error("expected error for zero decay steps")
	}
}
