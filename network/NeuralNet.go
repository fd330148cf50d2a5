// Package network implements feed forward neural networks built on
// Gorgonia computational graphs.
package network

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network which lives in a single
// computational graph. The values of a NeuralNet's learnables are
// owned by the NeuralNet, so two NeuralNets in different graphs are
// kept in sync with Set and Polyak.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)

	// CloneWithInputTo clones the NeuralNet into graph g, using the
	// argument input nodes concatenated along axis as input.
	CloneWithInputTo(axis int, inputs []*G.Node,
		g *G.ExprGraph) (NeuralNet, error)

	BatchSize() int
	Features() []int
	Outputs() []int
	OutputLayers() int

	Input() *G.Node
	SetInput([]float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() []G.Value
	Prediction() []*G.Node
}

// Set sets the weights of dest to be equal to the weights of source.
// Both networks must have the same architecture.
func Set(dest, source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("set: networks have a different number of "+
			"learnables \n\twant(%v) \n\thave(%v)", len(nodes),
			len(sourceNodes))
	}

	for i := range nodes {
		weights, sourceWeights, err := weightData(nodes[i], sourceNodes[i])
		if err != nil {
			return fmt.Errorf("set: %v", err)
		}
		copy(weights, sourceWeights)
	}
	return nil
}

// Polyak sets the weights of dest to be a polyak average between its
// existing weights and the weights of source:
//
//	dest ← ployak * dest + (1 - ployak) * source
//
// A ployak of 1 leaves dest unchanged and a ployak of 0 copies source
// into dest.
func Polyak(dest, source NeuralNet, ployak float64) error {
	if ployak < 0 || ployak > 1 {
		return fmt.Errorf("polyak: ployak must be in [0, 1] but got %v",
			ployak)
	}

	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("polyak: networks have a different number of "+
			"learnables \n\twant(%v) \n\thave(%v)", len(nodes),
			len(sourceNodes))
	}

	if ployak == 1 {
		return nil
	}

	for i := range nodes {
		weights, sourceWeights, err := weightData(nodes[i], sourceNodes[i])
		if err != nil {
			return fmt.Errorf("polyak: %v", err)
		}
		floats.Scale(ployak, weights)
		floats.AddScaled(weights, 1-ployak, sourceWeights)
	}
	return nil
}

// weightData returns the backing data of two learnables, ensuring
// they have the same size.
func weightData(dest, source *G.Node) ([]float64, []float64, error) {
	if dest.Value() == nil || source.Value() == nil {
		return nil, nil, fmt.Errorf("learnable %v has no value", dest.Name())
	}

	weights, err := Float64s(dest.Value())
	if err != nil {
		return nil, nil, fmt.Errorf("learnable %v: %v", dest.Name(), err)
	}
	sourceWeights, err := Float64s(source.Value())
	if err != nil {
		return nil, nil, fmt.Errorf("learnable %v: %v", source.Name(), err)
	}

	if len(weights) != len(sourceWeights) {
		return nil, nil, fmt.Errorf("learnable %v has incompatible size "+
			"\n\twant(%v) \n\thave(%v)", dest.Name(), len(weights),
			len(sourceWeights))
	}
	return weights, sourceWeights, nil
}

// Weights returns a copy of the weights of each learnable in net, in
// the order given by net.Learnables().
func Weights(net NeuralNet) [][]float64 {
	learnables := net.Learnables()
	weights := make([][]float64, len(learnables))
	for i, l := range learnables {
		data, err := Float64s(l.Value())
		if err != nil {
			panic(fmt.Sprintf("weights: learnable %v: %v", l.Name(), err))
		}
		weights[i] = make([]float64, len(data))
		copy(weights[i], data)
	}
	return weights
}

// SetWeights sets the weights of each learnable in net to weights,
// which must be ordered as net.Learnables().
func SetWeights(net NeuralNet, weights [][]float64) error {
	learnables := net.Learnables()
	if len(learnables) != len(weights) {
		return fmt.Errorf("setWeights: invalid number of weights "+
			"\n\twant(%v) \n\thave(%v)", len(learnables), len(weights))
	}

	for i, l := range learnables {
		data, err := Float64s(l.Value())
		if err != nil {
			return fmt.Errorf("setWeights: learnable %v: %v", l.Name(), err)
		}
		if len(data) != len(weights[i]) {
			return fmt.Errorf("setWeights: invalid size for learnable %v "+
				"\n\twant(%v) \n\thave(%v)", l.Name(), len(data),
				len(weights[i]))
		}
		copy(data, weights[i])
	}
	return nil
}

// ZeroGrad zeroes the gradients of each learnable in the model.
// Learnables which have no gradient attached are skipped.
func ZeroGrad(model []G.ValueGrad) {
	for _, vg := range model {
		grad, err := vg.Grad()
		if err != nil || grad == nil {
			continue
		}
		if data, err := Float64s(grad); err == nil {
			for i := range data {
				data[i] = 0
			}
		}
	}
}

// Float64s returns the backing data of a float64 Gorgonia tensor
// Value. The returned slice aliases the Value, so modifying it modifies
// the Value.
func Float64s(v G.Value) ([]float64, error) {
	if v == nil {
		return nil, fmt.Errorf("float64s: nil value")
	}
	data, ok := v.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("float64s: expected []float64 data but got %T",
			v.Data())
	}
	return data, nil
}
