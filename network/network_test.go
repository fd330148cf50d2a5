package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// constantMLP returns a single-hidden-layer MLP whose weights are all
// equal to weight and whose biases are all equal to bias.
func constantMLP(t *testing.T, weight, bias float64,
	act *Activation) *MultiHeadMLP {
	t.Helper()
	net, err := NewSingleHeadMLP(3, 1, G.NewGraph(), []int{2}, []bool{true},
		G.ValuesOf(weight), G.ValuesOf(bias), []*Activation{act}, "Test")
	if err != nil {
		t.Fatalf("could not create MLP: %v", err)
	}
	return net
}

func predict(t *testing.T, net NeuralNet, input []float64) []float64 {
	t.Helper()
	if err := net.SetInput(input); err != nil {
		t.Fatalf("could not set input: %v", err)
	}
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}
	out, err := Float64s(net.Output()[0])
	if err != nil {
		t.Fatalf("could not read output: %v", err)
	}
	return append([]float64{}, out...)
}

func TestMLPForward(t *testing.T) {
	tests := []struct {
		name string
		act  *Activation
		in   []float64
		want float64
	}{
		// hidden = 1 + 2 + 3 = 6 per unit, output = 6 + 6 = 12
		{"identity", Identity(), []float64{1, 2, 3}, 12},
		{"relu", ReLU(), []float64{1, 2, 3}, 12},
		{"reluNegative", ReLU(), []float64{-1, -2, -3}, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			net := constantMLP(t, 1, 0, test.act)
			out := predict(t, net, test.in)
			if len(out) != 1 || out[0] != test.want {
				t.Errorf("want(%v) have(%v)", test.want, out)
			}
		})
	}
}

func TestPolyak(t *testing.T) {
	dest := constantMLP(t, 1, 1, ReLU())
	source := constantMLP(t, 3, 3, ReLU())

	if err := Polyak(dest, source, 0.25); err != nil {
		t.Fatal(err)
	}

	for _, w := range Weights(dest) {
		for _, v := range w {
			if math.Abs(v-2.5) > 1e-12 {
				t.Fatalf("want(2.5) have(%v)", v)
			}
		}
	}

	// Source is never modified
	for _, w := range Weights(source) {
		for _, v := range w {
			if v != 3 {
				t.Fatalf("source modified: want(3) have(%v)", v)
			}
		}
	}
}

func TestPolyakOneLeavesDestUnchanged(t *testing.T) {
	dest := constantMLP(t, 0.3, 0.1, ReLU())
	source := constantMLP(t, 7, 7, ReLU())
	before := Weights(dest)

	if err := Polyak(dest, source, 1); err != nil {
		t.Fatal(err)
	}

	after := Weights(dest)
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				t.Fatalf("weights changed: want(%v) have(%v)", before[i][j],
					after[i][j])
			}
		}
	}
}

func TestPolyakInvalid(t *testing.T) {
	dest := constantMLP(t, 1, 1, ReLU())
	source := constantMLP(t, 3, 3, ReLU())
	for _, ployak := range []float64{-0.1, 1.1} {
		if err := Polyak(dest, source, ployak); err == nil {
			t.Errorf("expected error for ployak %v", ployak)
		}
	}
}

func TestSetAndClone(t *testing.T) {
	source := constantMLP(t, 2, 0.5, Identity())
	clone, err := source.CloneWithBatch(4)
	if err != nil {
		t.Fatal(err)
	}
	if clone.Graph() == source.Graph() {
		t.Fatal("clone should live in a new graph")
	}
	if clone.BatchSize() != 4 {
		t.Errorf("batch size: want(4) have(%v)", clone.BatchSize())
	}

	// Clones copy weights and do not share them
	w := clone.Learnables()[0].Value().Data().([]float64)
	w[0] = 100
	if v := Weights(source)[0][0]; v != 2 {
		t.Fatalf("clone shares weights with source: have(%v)", v)
	}

	if err := Set(clone, source); err != nil {
		t.Fatal(err)
	}
	if v := Weights(clone)[0][0]; v != 2 {
		t.Errorf("set: want(2) have(%v)", v)
	}
}

func TestCloneWithInputToConcatenates(t *testing.T) {
	q := constantMLP(t, 1, 0, Identity())

	g := G.NewGraph()
	state := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 2),
		G.WithName("s"), G.WithValue(tensor.New(tensor.WithShape(1, 2),
			tensor.WithBacking([]float64{1, 2}))))
	action := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 1),
		G.WithName("a"), G.WithValue(tensor.New(tensor.WithShape(1, 1),
			tensor.WithBacking([]float64{3}))))

	clone, err := q.CloneWithInputTo(1, []*G.Node{state, action}, g)
	if err != nil {
		t.Fatal(err)
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}
	out, _ := Float64s(clone.Output()[0])
	if out[0] != 12 {
		t.Errorf("want(12) have(%v)", out[0])
	}
}

func TestTreeMLP(t *testing.T) {
	const batch, features, outputs = 2, 3, 2
	net, err := NewTreeMLP(features, batch, outputs, G.NewGraph(),
		[]int{4}, []bool{true}, []*Activation{ReLU()},
		[][]int{{5, outputs}, {5, outputs}},
		[][]bool{{true, true}, {true, true}},
		[][]*Activation{{ReLU(), TanH()}, {ReLU(), Sigmoid()}},
		G.Gaussian(0, 0.1), G.ValuesOf(0.1), "Actor")
	if err != nil {
		t.Fatal(err)
	}

	if net.OutputLayers() != 2 {
		t.Fatalf("output layers: want(2) have(%v)", net.OutputLayers())
	}

	if err := net.SetInput([]float64{1, 2, 3, -1, -2, -3}); err != nil {
		t.Fatal(err)
	}
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	mean, _ := Float64s(net.Output()[0])
	scale, _ := Float64s(net.Output()[1])
	if len(mean) != batch*outputs || len(scale) != batch*outputs {
		t.Fatalf("invalid output sizes: %v %v", len(mean), len(scale))
	}
	for i := range mean {
		if mean[i] < -1 || mean[i] > 1 {
			t.Errorf("tanh output out of range: %v", mean[i])
		}
		if scale[i] < 0 || scale[i] > 1 {
			t.Errorf("sigmoid output out of range: %v", scale[i])
		}
	}

	// Root (2) and two leaves (4 each)
	if n := len(net.Learnables()); n != 10 {
		t.Errorf("learnables: want(10) have(%v)", n)
	}
}

func TestNewTreeMLPValidatesLeafOutputs(t *testing.T) {
	_, err := NewTreeMLP(3, 1, 2, G.NewGraph(),
		[]int{4}, []bool{true}, []*Activation{ReLU()},
		[][]int{{5, 3}}, [][]bool{{true, true}},
		[][]*Activation{{ReLU(), TanH()}},
		G.Zeroes(), G.Zeroes(), "Actor")
	if err == nil {
		t.Error("expected error when final leaf layer size != outputs")
	}
}

func TestSetWeightsInvalid(t *testing.T) {
	net := constantMLP(t, 1, 1, ReLU())
	if err := SetWeights(net, [][]float64{{1}}); err == nil {
		t.Error("expected error for wrong number of learnables")
	}
}

func TestActivationText(t *testing.T) {
	for _, name := range []string{"relu", "tanh", "sigmoid", "identity"} {
		var a Activation
		if err := a.UnmarshalText([]byte(name)); err != nil {
			t.Fatalf("%v: %v", name, err)
		}
		if a.String() != name {
			t.Errorf("want(%v) have(%v)", name, a.String())
		}
	}

	var a Activation
	if err := a.UnmarshalText([]byte("softplus")); err == nil {
		t.Error("expected error for unknown activation")
	}
}
