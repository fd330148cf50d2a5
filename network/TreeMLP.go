package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// TreeMLP implements a multi-layered perceptron with a base observation
// network and multiple leaf networks that use the output of the root
// observation network as their own inputs. A diagram of a tree MLP:
//
//	                  ╭─→ Leaf Network 1       ─→ Output
//	                  ├─→ Leaf Network 2       ─→ Output
//	Input ─→ Root Net ┼─→ ...                  ─→  ...
//	                  ├─→ Leaf Network (N - 1) ─→ Output
//	                  ╰─→ Leaf Network N       ─→ Output
//
// The final layer of each leaf network produces the outputs of that
// leaf, including its activation. This allows, for example, one leaf
// to predict a bounded mean with a tanh activation and another to
// predict a positive scale with a sigmoid activation.
type TreeMLP struct {
	g            *G.ExprGraph
	rootNetwork  *MultiHeadMLP   // Observation network
	leafNetworks []*MultiHeadMLP // Leaf networks
	input        *G.Node         // Input to observation network
	prefix       string

	numOutputs []int // Number of outputs per leaf layer
	numInputs  int   // Features input for observation network
	batchSize  int

	// Store learnables and model so that they don't need to be computed
	// each time a gradient step is taken
	learnables G.Nodes
	model      []G.ValueGrad

	predVal    []G.Value // Values predicted by each leaf node
	prediction []*G.Node // Nodes holding the predictions
}

// validateTreeMLP validates the arguments of NewTreeMLP() to ensure
// they are legal.
func validateTreeMLP(numOutputs int, rootHiddenSizes []int, rootBiases []bool,
	rootActivations []*Activation, leafHiddenSizes [][]int,
	leafBiases [][]bool, leafActivations [][]*Activation) error {
	// Validate observation/root network
	if len(rootHiddenSizes) == 0 {
		return fmt.Errorf("root network must have at least one hidden layer")
	}
	if err := validateMLP(rootHiddenSizes, rootBiases,
		rootActivations); err != nil {
		return fmt.Errorf("root network: %v", err)
	}

	// Validate number of leaf networks
	if len(leafHiddenSizes) == 0 {
		return fmt.Errorf("there must be at least one leaf network specified")
	}

	if numOutputs <= 0 {
		return fmt.Errorf("there must be more than 0 outputs per leaf network")
	}

	if len(leafHiddenSizes) != len(leafActivations) {
		msg := "invalid number of leaf network activations " +
			"\n\twant(%v) \n\thave(%v)"
		return fmt.Errorf(msg, len(leafHiddenSizes), len(leafActivations))
	}

	if len(leafHiddenSizes) != len(leafBiases) {
		msg := "invalid number of leaf network biases " +
			"\n\twant(%v) \n\thave(%v)"
		return fmt.Errorf(msg, len(leafHiddenSizes), len(leafBiases))
	}

	// Validate architecture of leaf networks
	for i := range leafHiddenSizes {
		if err := validateMLP(leafHiddenSizes[i], leafBiases[i],
			leafActivations[i]); err != nil {
			return fmt.Errorf("leaf network %v: %v", i, err)
		}

		sizes := leafHiddenSizes[i]
		if len(sizes) == 0 || sizes[len(sizes)-1] != numOutputs {
			msg := "final layer of leaf network %v must have one unit per " +
				"output \n\twant(%v) \n\thave(%v)"
			return fmt.Errorf(msg, i, numOutputs, sizes)
		}
	}

	return nil
}

// NewTreeMLP returns a new TreeMLP.
//
// The observation network has number of layers equal to
// len(rootHiddenSizes). For index i, rootHiddenSizes[i] determines the
// number of hidden units in that layer, rootBiases[i] determines if a
// bias unit is added to the hidden layer, and rootActivations[i]
// determines the activation function to apply to that hidden layer.
//
// The number of leaf networks is defined by len(leafHiddenSizes).
// For indices i and j, leafHiddenSizes[i][j], leafBiases[i][j], and
// leafActivations[i][j] determine the number of hidden units of layer
// j in leaf network i, whether a bias is added to layer j of leaf
// network i, and the activation of layer j of leaf network i
// respectively. The last layer of each leaf network must have outputs
// units. For example, leafHiddenSizes = [][]int{{64, 2}, {64, 2}}
// creates two leaf networks, each with a hidden layer of 64 units
// followed by an output layer of 2 units.
//
// All nodes of the network are named with the argument prefix.
func NewTreeMLP(features, batch, outputs int, g *G.ExprGraph,
	rootHiddenSizes []int, rootBiases []bool, rootActivations []*Activation,
	leafHiddenSizes [][]int, leafBiases [][]bool,
	leafActivations [][]*Activation, weightInit, biasInit G.InitWFn,
	prefix string) (*TreeMLP, error) {

	err := validateTreeMLP(outputs, rootHiddenSizes, rootBiases, rootActivations,
		leafHiddenSizes, leafBiases, leafActivations)
	if err != nil {
		return nil, fmt.Errorf("newTreeMLP: %v", err)
	}

	// Set up the input node
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(prefix+"Input"), G.WithInit(G.Zeroes()))

	// Create root/observation network and run its forward pass
	observationOutputs := rootHiddenSizes[len(rootHiddenSizes)-1]
	rootNetwork, err := newMultiHeadMLPFromInput([]*G.Node{input},
		observationOutputs, g, rootHiddenSizes, rootBiases, weightInit,
		biasInit, rootActivations, prefix+"Root", false)
	if err != nil {
		return nil, fmt.Errorf("newTreeMLP: could not construct root "+
			"network: %v", err)
	}

	// Create leaf networks and run each of their forward passes
	rootOutput := rootNetwork.Prediction()
	numOutputs := make([]int, len(leafHiddenSizes))
	leafNetworks := make([]*MultiHeadMLP, len(leafHiddenSizes))
	for i := range leafHiddenSizes {
		leafPrefix := fmt.Sprintf("%sLeaf%d", prefix, i)

		leafNetworks[i], err = newMultiHeadMLPFromInput(rootOutput, outputs, g,
			leafHiddenSizes[i], leafBiases[i], weightInit, biasInit,
			leafActivations[i], leafPrefix, false)
		if err != nil {
			return nil, fmt.Errorf("newTreeMLP: could not construct leaf "+
				"network %v: %v", i, err)
		}
		numOutputs[i] = outputs
	}

	net := &TreeMLP{
		g:            g,
		rootNetwork:  rootNetwork,
		leafNetworks: leafNetworks,
		input:        input,
		prefix:       prefix,
		numOutputs:   numOutputs,
		numInputs:    features,
		batchSize:    batch,
	}
	net.fwd()

	return net, nil
}

// Input returns the input node of the network
func (t *TreeMLP) Input() *G.Node {
	return t.input
}

// SetInput sets the value of the input node before running the forward
// pass.
func (t *TreeMLP) SetInput(input []float64) error {
	if t.input.Op() != nil {
		return fmt.Errorf("setInput: network input is computed by the " +
			"graph and cannot be set")
	}
	if len(input) != t.numInputs*t.batchSize {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", t.numInputs*t.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(t.input.Shape()...),
	)

	return G.Let(t.input, inputTensor)
}

// Outputs returns the number of outputs per leaf network
func (t *TreeMLP) Outputs() []int {
	return t.numOutputs
}

// OutputLayers returns the number of output layers in the network.
// There is one output layer per leaf network.
func (t *TreeMLP) OutputLayers() int {
	return len(t.Prediction())
}

// Graph returns the computational graph of the network
func (t *TreeMLP) Graph() *G.ExprGraph {
	return t.g
}

// Features returns the number of input features
func (t *TreeMLP) Features() []int {
	return []int{t.numInputs}
}

// Clone returns a clone of the TreeMLP.
func (t *TreeMLP) Clone() (NeuralNet, error) {
	return t.CloneWithBatch(t.batchSize)
}

// CloneWithBatch returns a clone of the TreeMLP with a new input
// batch size in a new computational graph.
func (t *TreeMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchSize, t.numInputs),
		G.WithName(t.prefix+"Input"),
		G.WithInit(G.Zeroes()),
	)

	return t.CloneWithInputTo(-1, []*G.Node{input}, graph)
}

// CloneWithInputTo clones the TreeMLP to a new graph with a given
// input node. If multiple input nodes are given, then
// they are first concatenated along the specified axis.
func (t *TreeMLP) CloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("cloneWithInputTo: no inputs given")
	}

	// Ensure all inputs share the same graph
	for _, input := range inputs {
		if input.Graph() != graph {
			return nil, fmt.Errorf("cloneWithInputTo: not all inputs " +
				"have the same graph")
		}
	}

	// Concatenate inputs if necessary
	input := inputs[0]
	if len(inputs) > 1 {
		var err error
		if input, err = G.Concat(axis, inputs...); err != nil {
			return nil, fmt.Errorf("cloneWithInputTo: could not "+
				"concatenate inputs: %v", err)
		}
	}

	// Ensure the input is a matrix
	if !input.IsMatrix() {
		return nil, fmt.Errorf("cloneWithInputTo: input must be a matrix node")
	}
	batchSize := input.Shape()[0]

	rootClone, err := t.rootNetwork.cloneWithInputTo(-1, []*G.Node{input},
		graph)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: could not clone root "+
			"network: %v", err)
	}

	rootOutput := rootClone.Prediction()
	leafClones := make([]*MultiHeadMLP, len(t.leafNetworks))
	for i := range leafClones {
		leafClones[i], err = t.leafNetworks[i].cloneWithInputTo(-1, rootOutput,
			graph)
		if err != nil {
			msg := "cloneWithInputTo: could not clone leaf network %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	net := &TreeMLP{
		g:            graph,
		rootNetwork:  rootClone,
		leafNetworks: leafClones,
		input:        input,
		prefix:       t.prefix,
		numOutputs:   t.numOutputs,
		numInputs:    t.numInputs,
		batchSize:    batchSize,
	}
	net.fwd()

	return net, nil
}

// BatchSize returns the batch size for inputs to the network
func (t *TreeMLP) BatchSize() int {
	return t.batchSize
}

// fwd records the predictions of each leaf network. Because of the way
// TreeMLPs are constructed, the input has already been sent through
// each sub-network's forward pass.
func (t *TreeMLP) fwd() {
	leafPredictions := make([]*G.Node, 0, len(t.leafNetworks))
	for _, leafNet := range t.leafNetworks {
		leafPredictions = append(leafPredictions, leafNet.Prediction()...)
	}
	t.prediction = leafPredictions

	t.predVal = make([]G.Value, len(t.prediction))
	for i, pred := range t.prediction {
		G.Read(pred, &t.predVal[i])
	}
}

// Output returns the output of each leaf network of the TreeMLP, in
// the order the leaf networks were specified.
func (t *TreeMLP) Output() []G.Value {
	return t.predVal
}

// Prediction returns the nodes of the computational graph that store
// the output of each leaf network.
func (t *TreeMLP) Prediction() []*G.Node {
	return t.prediction
}

// Model returns the learnable nodes with their gradients.
func (t *TreeMLP) Model() []G.ValueGrad {
	// Lazy instantiation of model
	if t.model == nil {
		t.model = t.computeModel()
	}
	return t.model
}

// computeModel gets and returns all learnables of the network with
// their gradients
func (t *TreeMLP) computeModel() []G.ValueGrad {
	var model []G.ValueGrad
	for _, learnable := range t.Learnables() {
		model = append(model, learnable)
	}
	return model
}

// Learnables returns the learnable nodes in a TreeMLP
func (t *TreeMLP) Learnables() G.Nodes {
	// Lazy instantiation of learnables
	if t.learnables == nil {
		t.learnables = t.computeLearnables()
	}
	return t.learnables
}

// computeLearnables gets and returns all learnables of the network,
// root network first followed by each leaf network in order
func (t *TreeMLP) computeLearnables() G.Nodes {
	learnables := make([]*G.Node, 0, len(t.rootNetwork.Learnables()))

	learnables = append(learnables, t.rootNetwork.Learnables()...)
	for _, leafNet := range t.leafNetworks {
		learnables = append(learnables, leafNet.Learnables()...)
	}

	return G.Nodes(learnables)
}
