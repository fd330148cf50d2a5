package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MultiHeadMLP implements a multi-layered perceptron with multiple
// output nodes, one for each value that should be predicted.
type MultiHeadMLP struct {
	g          *G.ExprGraph
	layers     []Layer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int
	prefix     string

	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// validateMLP ensures there is one bias and activation per layer
func validateMLP(hiddenSizes []int, biases []bool,
	activations []*Activation) error {
	if len(hiddenSizes) != len(activations) {
		msg := "invalid number of activations\n\twant(%d)\n\thave(%d)"
		return fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	if len(hiddenSizes) != len(biases) {
		msg := "invalid number of biases\n\twant(%d)\n\thave(%d)"
		return fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	for i, units := range hiddenSizes {
		if units <= 0 {
			return fmt.Errorf("layer %v must have a positive number of "+
				"units but got %v", i, units)
		}
	}
	return nil
}

// newMultiHeadMLPFromInput returns a new multi-head output MLP that
// has a specific node as its input node. If multiple input nodes are
// given, they are first concatenated along the feature (column)
// dimension.
//
// If addFinalLayer is true, a final linear layer with a bias is added
// so that the network has outputs outputs. Otherwise, the last hidden
// layer must have outputs units and its activation is kept.
func newMultiHeadMLPFromInput(inputs []*G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, weightInit, biasInit G.InitWFn,
	activations []*Activation, prefix string,
	addFinalLayer bool) (*MultiHeadMLP, error) {
	if err := validateMLP(hiddenSizes, biases, activations); err != nil {
		return nil, fmt.Errorf("newMultiHeadMLPFromInput: %v", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("newMultiHeadMLPFromInput: no inputs given")
	}

	// Concatenate inputs if necessary
	var input *G.Node
	if len(inputs) > 1 {
		var err error
		if input, err = G.Concat(1, inputs...); err != nil {
			return nil, fmt.Errorf("newMultiHeadMLPFromInput: could not "+
				"concatenate inputs: %v", err)
		}
	} else {
		input = inputs[0]
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("newMultiHeadMLPFromInput: input must be a " +
			"matrix")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	// Copy so that appending the final layer never aliases the
	// caller's slices
	hiddenSizes = append([]int{}, hiddenSizes...)
	biases = append([]bool{}, biases...)
	activations = append([]*Activation{}, activations...)

	// If required, add a final linear layer with no activation to ensure
	// outputs heads are predicted by the network
	if addFinalLayer {
		hiddenSizes = append(hiddenSizes, outputs)
		biases = append(biases, true)
		activations = append(activations, Identity())
	} else if len(hiddenSizes) == 0 ||
		outputs != hiddenSizes[len(hiddenSizes)-1] {
		msg := "newMultiHeadMLPFromInput: claimed output is of size %v " +
			"but final network layer is of size %v"
		last := 0
		if len(hiddenSizes) > 0 {
			last = hiddenSizes[len(hiddenSizes)-1]
		}
		return nil, fmt.Errorf(msg, outputs, last)
	}

	layers := addfcLayers(g, hiddenSizes, biases, activations, weightInit,
		biasInit, features, prefix)

	// Create the network and run the forward pass on the input node
	network := &MultiHeadMLP{
		g:           g,
		layers:      layers,
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		prefix:      prefix,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}
	if _, err := network.fwd(input); err != nil {
		msg := "newMultiHeadMLPFromInput: could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}

	return network, nil
}

// NewMultiHeadMLP creates and returns a new multi-layered perceptron
// that has multiple output nodes, The number of outputs nodes is equal
// to outputs. The graph parameter g is populated with the MLP.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. A final
// linear layer with a bias is always added such that given any input,
// the output will be outputs. For index i, hiddenSizes[i] is the
// number of nodes in hidden layer i; biases[i] is true if the
// hidden layer will contain a bias unit and false otherwise; and
// activations[i] is the activation function for hidden layer i.
// Weights are initialized with weightInit and biases with biasInit.
//
// All nodes of the network are named with the argument prefix.
func NewMultiHeadMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, weightInit, biasInit G.InitWFn,
	activations []*Activation, prefix string) (*MultiHeadMLP, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(prefix+"Input"), G.WithInit(G.Zeroes()))

	return newMultiHeadMLPFromInput([]*G.Node{input}, outputs, g, hiddenSizes,
		biases, weightInit, biasInit, activations, prefix, true)
}

// NewMultiHeadMLPFromInput is like NewMultiHeadMLP, but uses existing
// nodes of g as input to the network. Multiple inputs are concatenated
// along the feature dimension.
func NewMultiHeadMLPFromInput(inputs []*G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, weightInit, biasInit G.InitWFn,
	activations []*Activation, prefix string) (*MultiHeadMLP, error) {
	for _, input := range inputs {
		if input.Graph() != g {
			return nil, fmt.Errorf("newMultiHeadMLPFromInput: not all " +
				"inputs have the same graph")
		}
	}
	return newMultiHeadMLPFromInput(inputs, outputs, g, hiddenSizes, biases,
		weightInit, biasInit, activations, prefix, true)
}

// Graph returns the computational graph of the MultiHeadMLP.
func (e *MultiHeadMLP) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones a MultiHeadMLP
func (e *MultiHeadMLP) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithInputTo clones a MultiHeadMLP to a specific computational
// graph with a specified input node. If multiple input nodes are
// given, then they are first concatenated along the specified axis.
func (e *MultiHeadMLP) CloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	return e.cloneWithInputTo(axis, inputs, graph)
}

func (e *MultiHeadMLP) cloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (*MultiHeadMLP, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("cloneWithInputTo: no inputs given")
	}

	// Ensure inputs share the same graph
	for _, input := range inputs {
		if input.Graph() != graph {
			return nil, fmt.Errorf("cloneWithInputTo: not all inputs " +
				"have the same graph")
		}
	}

	// Concatenate inputs if necessary
	var input *G.Node
	if len(inputs) > 1 {
		var err error
		if input, err = G.Concat(axis, inputs...); err != nil {
			return nil, fmt.Errorf("cloneWithInputTo: could not "+
				"concatenate inputs: %v", err)
		}
	} else {
		input = inputs[0]
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("cloneWithInputTo: input must be a matrix node")
	}
	if features := input.Shape()[1]; features != e.numInputs {
		return nil, fmt.Errorf("cloneWithInputTo: invalid number of input "+
			"features \n\twant(%v) \n\thave(%v)", e.numInputs, features)
	}

	// Copy fully connected layers
	l := make([]Layer, len(e.layers))
	for i := range e.layers {
		l[i] = e.layers[i].CloneTo(graph)
	}

	network := &MultiHeadMLP{
		g:           graph,
		layers:      l,
		input:       input,
		numOutputs:  e.numOutputs,
		numInputs:   e.numInputs,
		batchSize:   input.Shape()[0],
		prefix:      e.prefix,
		hiddenSizes: e.hiddenSizes,
		biases:      e.biases,
		activations: e.activations,
	}
	if _, err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: could not compute "+
			"forward pass: %v", err)
	}

	return network, nil
}

// CloneWithBatch clones a MultiHeadMLP with a new input batch
// size into a new computational graph.
func (e *MultiHeadMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchSize, e.numInputs),
		G.WithName(e.prefix+"Input"),
		G.WithInit(G.Zeroes()),
	)

	return e.cloneWithInputTo(-1, []*G.Node{input}, graph)
}

// BatchSize returns the batch size of inputs to the network
func (e *MultiHeadMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input.
func (e *MultiHeadMLP) Features() []int {
	return []int{e.numInputs}
}

// Outputs returns the number of outputs from the network
func (e *MultiHeadMLP) Outputs() []int {
	return []int{e.numOutputs}
}

// OutputLayers returns the number of layers that will produce Outputs()
// values as predictions.
func (e *MultiHeadMLP) OutputLayers() int {
	return len(e.Prediction())
}

// Layers returns the layers of the network
func (e *MultiHeadMLP) Layers() []Layer {
	return e.layers
}

// Input returns the input node of the network
func (e *MultiHeadMLP) Input() *G.Node {
	return e.input
}

// SetInput sets the value of the input node before running the forward
// pass. Only networks which own their input node can have their input
// set.
func (e *MultiHeadMLP) SetInput(input []float64) error {
	if e.input.Op() != nil {
		return fmt.Errorf("setInput: network input is computed by the " +
			"graph and cannot be set")
	}
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Learnables returns the learnable nodes in a MultiHeadMLP
func (e *MultiHeadMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		e.learnables = e.computeLearnables()
	}
	return e.learnables
}

// computeLearnables computes all the learnables for the network
func (e *MultiHeadMLP) computeLearnables() G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(e.layers))

	for i := range e.layers {
		learnables = append(learnables, e.layers[i].Weights())
		if bias := e.layers[i].Bias(); bias != nil {
			learnables = append(learnables, bias)
		}
	}
	return G.Nodes(learnables)
}

// Model returns the learnables nodes with their gradients.
func (e *MultiHeadMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		e.model = e.computeModel()
	}
	return e.model
}

// computeModel computes the model for the network
func (e *MultiHeadMLP) computeModel() []G.ValueGrad {
	model := make([]G.ValueGrad, 0, 2*len(e.layers))
	for _, node := range e.Learnables() {
		model = append(model, node)
	}
	return model
}

// fwd performs the forward pass of the MultiHeadMLP on the input
// node
func (e *MultiHeadMLP) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape != e.numInputs {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	e.prediction = pred
	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the output of the MultiHeadMLP.
func (e *MultiHeadMLP) Output() []G.Value {
	return []G.Value{e.predVal}
}

// Prediction returns the node of the computational graph the stores
// the output of the MultiHeadMLP
func (e *MultiHeadMLP) Prediction() []*G.Node {
	return []*G.Node{e.prediction}
}
