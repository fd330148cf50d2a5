// Package policy implements policies using function approximation for
// continuous actions.
package policy

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/sac/network"
	"github.com/samuelfneumann/sac/timestep"
	"github.com/samuelfneumann/sac/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// logSqrt2Pi is log(√(2π)), the normalizing constant of the log
// density of a standard normal
var logSqrt2Pi = 0.5 * math.Log(2*math.Pi)

// ClippedGaussianTreeMLP implements a Gaussian policy parameterized by
// a tree MLP with a single root network and two leaf networks. The
// first leaf predicts the mean μ of the policy through a tanh output
// layer and the second predicts the standard deviation σ through a
// sigmoid output layer. A fixed offset is added to σ so that it never
// collapses to 0.
//
// Actions are selected using the reparameterization trick: given
// ε ~ N(0, I), the policy takes action clip(μ + σε, -1, 1). The clip
// is built into the computational graph so that gradients flow through
// the action when it lies inside [-1, 1] and vanish outside of it.
// Since ε is an input to the graph, the log probability of the action
// selected by the policy can be used in a loss function.
//
// The log probability of an action is computed under the unclipped
// Gaussian for each action dimension separately, so it has the same
// shape as the actions.
type ClippedGaussianTreeMLP struct {
	vm   G.VM
	net  network.NeuralNet
	eval bool

	eps     *G.Node
	mean    *G.Node
	std     *G.Node
	action  *G.Node
	logProb *G.Node

	meanVal    G.Value
	stdVal     G.Value
	actionVal  G.Value
	logProbVal G.Value

	normal     *distmv.Normal
	actionDims int
	batchSize  int
	stdOffset  float64
	seed       uint64
}

// NewClippedGaussianTreeMLP returns a new ClippedGaussianTreeMLP. The
// neural network parameterization of the policy is defined by
// rootHiddenSizes, rootBiases, rootActivations, leafHiddenSizes,
// leafBiases, and leafActivations. See the network.TreeMLP struct for
// details on what each of these parameters defines. There must be
// exactly two leaf networks, the first for the mean and the second
// for the standard deviation.
//
// The policy can select actions at each timestep with SelectAction()
// only when batch = 1. Policies with larger batches are used to
// construct losses and are run by an external VM.
func NewClippedGaussianTreeMLP(features, actionDims, batch int,
	g *G.ExprGraph, rootHiddenSizes []int, rootBiases []bool,
	rootActivations []*network.Activation, leafHiddenSizes [][]int,
	leafBiases [][]bool, leafActivations [][]*network.Activation,
	weightInit, biasInit G.InitWFn, stdOffset float64,
	seed uint64) (*ClippedGaussianTreeMLP, error) {
	if len(leafHiddenSizes) != 2 {
		return nil, fmt.Errorf("newClippedGaussianTreeMLP: gaussian policy "+
			"requires 2 leaf networks \n\twant(2) \n\thave(%v)",
			len(leafHiddenSizes))
	}

	net, err := network.NewTreeMLP(
		features,
		batch,
		actionDims,
		g,
		rootHiddenSizes,
		rootBiases,
		rootActivations,
		leafHiddenSizes,
		leafBiases,
		leafActivations,
		weightInit,
		biasInit,
		"Actor",
	)
	if err != nil {
		return nil, fmt.Errorf("newClippedGaussianTreeMLP: %v", err)
	}

	return newFromNet(net, stdOffset, seed)
}

// newFromNet adds the policy's distribution to the graph of net
func newFromNet(net network.NeuralNet, stdOffset float64,
	seed uint64) (*ClippedGaussianTreeMLP, error) {
	if stdOffset <= 0 {
		return nil, fmt.Errorf("newClippedGaussianTreeMLP: standard "+
			"deviation offset must be > 0 but got %v", stdOffset)
	}
	if net.OutputLayers() != 2 {
		return nil, fmt.Errorf("newClippedGaussianTreeMLP: network must "+
			"have 2 output layers \n\twant(2) \n\thave(%v)",
			net.OutputLayers())
	}

	g := net.Graph()
	batch := net.BatchSize()
	actionDims := net.Outputs()[0]

	mean := net.Prediction()[0]
	std := net.Prediction()[1]
	offset := G.NewConstant(stdOffset, G.WithName("StdOffset"))
	std = G.Must(G.Add(std, offset))

	eps := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName("Epsilon"),
		G.WithShape(batch, actionDims),
		G.WithInit(G.Zeroes()),
	)

	action, err := clip(G.Must(G.Add(mean, G.Must(G.HadamardProd(std, eps)))))
	if err != nil {
		return nil, fmt.Errorf("newClippedGaussianTreeMLP: could not clip "+
			"actions: %v", err)
	}

	logProb, err := logPdf(mean, std, action)
	if err != nil {
		return nil, fmt.Errorf("newClippedGaussianTreeMLP: could not "+
			"compute log probability: %v", err)
	}

	// Create standard normal for action selection
	means := make([]float64, actionDims)
	stds := mat.NewDiagDense(actionDims, floatutils.Ones(actionDims))
	source := rand.NewSource(seed)
	normal, ok := distmv.NewNormal(means, stds, source)
	if !ok {
		return nil, fmt.Errorf("newClippedGaussianTreeMLP: could not " +
			"create standard normal for action selection")
	}

	pol := &ClippedGaussianTreeMLP{
		net: net,

		eps:     eps,
		mean:    mean,
		std:     std,
		action:  action,
		logProb: logProb,

		normal:     normal,
		actionDims: actionDims,
		batchSize:  batch,
		stdOffset:  stdOffset,
		seed:       seed,
	}

	// Record values of Gorgonia nodes
	G.Read(pol.mean, &pol.meanVal)
	G.Read(pol.std, &pol.stdVal)
	G.Read(pol.action, &pol.actionVal)
	G.Read(pol.logProb, &pol.logProbVal)

	// Policy can select actions at each timestep only if using a batch
	// size of 1.
	if batch == 1 {
		pol.vm = G.NewTapeMachine(g)
	}

	return pol, nil
}

// clip adds nodes to the graph of x which clip x to [-1, 1]:
//
//	clip(x) = x - relu(x - 1) + relu(-x - 1)
//
// The gradient of clip(x) is 1 inside the interval and 0 outside.
func clip(x *G.Node) (*G.Node, error) {
	one := G.NewConstant(1.0, G.WithName("ClipBound"))

	above, err := G.Sub(x, one)
	if err != nil {
		return nil, err
	}
	above, err = G.Rectify(above)
	if err != nil {
		return nil, err
	}

	below, err := G.Neg(x)
	if err != nil {
		return nil, err
	}
	below, err = G.Sub(below, one)
	if err != nil {
		return nil, err
	}
	below, err = G.Rectify(below)
	if err != nil {
		return nil, err
	}

	clipped, err := G.Sub(x, above)
	if err != nil {
		return nil, err
	}
	return G.Add(clipped, below)
}

// logPdf adds nodes to the computational graph of mean/std/actions for
// computing the log probability of actions given nodes mean and std
// which hold the mean and standard deviation of the policy. The
// returned node holds the log density of each action dimension and has
// shape (batch, action dimensions).
func logPdf(mean, std, actions *G.Node) (*G.Node, error) {
	graph := mean.Graph()
	if graph != std.Graph() || graph != actions.Graph() {
		return nil, fmt.Errorf("logPdf: all nodes must share the same graph")
	}

	negativeHalf := G.NewConstant(-0.5, G.WithName("NegativeHalf"))
	normalizer := G.NewConstant(logSqrt2Pi, G.WithName("LogSqrt2Pi"))

	// -0.5 * ((a - μ) / σ)²
	exponent := G.Must(G.Sub(actions, mean))
	exponent = G.Must(G.HadamardDiv(exponent, std))
	exponent = G.Must(G.Square(exponent))
	exponent = G.Must(G.Mul(exponent, negativeHalf))

	// log(σ) + log(√(2π))
	terms := G.Must(G.Log(std))
	terms = G.Must(G.Add(terms, normalizer))

	return G.Sub(exponent, terms)
}

// CloneWithBatch clones the policy into a new computational graph
// with a new batch size. The weights of the clone are copies of the
// weights of the policy. The clone's action sampler is seeded with
// seed.
func (c *ClippedGaussianTreeMLP) CloneWithBatch(batch int,
	seed uint64) (*ClippedGaussianTreeMLP, error) {
	net, err := c.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: could not clone network: %v",
			err)
	}
	return newFromNet(net, c.stdOffset, seed)
}

// SetInput sets the states of the policy in row major order
func (c *ClippedGaussianTreeMLP) SetInput(states []float64) error {
	return c.net.SetInput(states)
}

// SampleEpsilon samples new standard normal noise for each sample in
// the batch, sets it as input to the graph, and returns it.
func (c *ClippedGaussianTreeMLP) SampleEpsilon() ([]float64, error) {
	eps := make([]float64, c.batchSize*c.actionDims)
	for i := 0; i < c.batchSize; i++ {
		c.normal.Rand(eps[i*c.actionDims : (i+1)*c.actionDims])
	}
	return eps, c.SetEpsilon(eps)
}

// SetEpsilon sets the noise used to select actions in row major order
func (c *ClippedGaussianTreeMLP) SetEpsilon(eps []float64) error {
	if len(eps) != c.batchSize*c.actionDims {
		return fmt.Errorf("setEpsilon: invalid number of noise samples "+
			"\n\twant(%v) \n\thave(%v)", c.batchSize*c.actionDims, len(eps))
	}
	epsTensor := tensor.New(
		tensor.WithShape(c.batchSize, c.actionDims),
		tensor.WithBacking(eps),
	)
	if err := G.Let(c.eps, epsTensor); err != nil {
		return fmt.Errorf("setEpsilon: could not set noise: %v", err)
	}
	return nil
}

// SelectAction selects and returns an action at the argument timestep
// t. In evaluation mode, the mean action is returned.
func (c *ClippedGaussianTreeMLP) SelectAction(
	t timestep.TimeStep) (*mat.VecDense, error) {
	obs := t.Features()
	if obs == nil {
		return nil, fmt.Errorf("selectAction: nil observation")
	}

	if c.eval {
		return c.MeanAction(obs)
	}
	return c.SampleAction(obs)
}

// SampleAction returns an action sampled from the policy in the
// argument observation
func (c *ClippedGaussianTreeMLP) SampleAction(
	obs []float64) (*mat.VecDense, error) {
	if err := c.run(obs, true); err != nil {
		return nil, fmt.Errorf("sampleAction: %v", err)
	}
	return c.valueVec(c.actionVal)
}

// MeanAction returns the mean action of the policy in the argument
// observation
func (c *ClippedGaussianTreeMLP) MeanAction(
	obs []float64) (*mat.VecDense, error) {
	if err := c.run(obs, false); err != nil {
		return nil, fmt.Errorf("meanAction: %v", err)
	}
	return c.valueVec(c.meanVal)
}

// run runs the policy's VM on a single observation
func (c *ClippedGaussianTreeMLP) run(obs []float64, sample bool) error {
	if c.vm == nil {
		return fmt.Errorf("action selection can only be done with a "+
			"policy with batch size 1 \n\twant(1) \n\thave(%v)", c.batchSize)
	}
	if features := c.net.Features()[0]; len(obs) != features {
		return fmt.Errorf("invalid observation size \n\twant(%v) "+
			"\n\thave(%v)", features, len(obs))
	}

	if err := c.SetInput(obs); err != nil {
		return fmt.Errorf("cannot set input: %v", err)
	}
	if sample {
		if _, err := c.SampleEpsilon(); err != nil {
			return err
		}
	}

	defer c.vm.Reset()
	if err := c.vm.RunAll(); err != nil {
		return fmt.Errorf("could not run policy VM: %v", err)
	}
	return nil
}

// valueVec copies a recorded value into a new vector
func (c *ClippedGaussianTreeMLP) valueVec(v G.Value) (*mat.VecDense, error) {
	data, err := network.Float64s(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(data))
	copy(out, data)
	return mat.NewVecDense(len(out), out), nil
}

// Mean returns the mean of the policy computed in the last run of the
// policy's graph
func (c *ClippedGaussianTreeMLP) Mean() []float64 {
	data, _ := network.Float64s(c.meanVal)
	return data
}

// Std returns the standard deviation of the policy computed in the last
// run of the policy's graph, including the offset
func (c *ClippedGaussianTreeMLP) Std() []float64 {
	data, _ := network.Float64s(c.stdVal)
	return data
}

// Action returns the actions selected by the policy in the last run of
// the policy's graph
func (c *ClippedGaussianTreeMLP) Action() []float64 {
	data, _ := network.Float64s(c.actionVal)
	return data
}

// LogProb returns the log probability of each dimension of the actions
// selected in the last run of the policy's graph, in row major order
func (c *ClippedGaussianTreeMLP) LogProb() []float64 {
	data, _ := network.Float64s(c.logProbVal)
	return data
}

// Entropy returns the average entropy of each action dimension of the
// (unclipped) policy computed in the last run of the policy's graph.
func (c *ClippedGaussianTreeMLP) Entropy() float64 {
	std := c.Std()
	if len(std) == 0 {
		return math.NaN()
	}
	entropy := make([]float64, len(std))
	for i, s := range std {
		entropy[i] = 0.5 + logSqrt2Pi + math.Log(s)
	}
	return stat.Mean(entropy, nil)
}

// ActionNode returns the node which holds the actions selected by the
// policy
func (c *ClippedGaussianTreeMLP) ActionNode() *G.Node {
	return c.action
}

// LogProbNode returns the node which holds the log probability of the
// actions selected by the policy
func (c *ClippedGaussianTreeMLP) LogProbNode() *G.Node {
	return c.logProb
}

// Network returns the network of the policy
func (c *ClippedGaussianTreeMLP) Network() network.NeuralNet {
	return c.net
}

// ActionDims returns the dimension of actions
func (c *ClippedGaussianTreeMLP) ActionDims() int {
	return c.actionDims
}

// BatchSize returns the number of states the policy acts in at once
func (c *ClippedGaussianTreeMLP) BatchSize() int {
	return c.batchSize
}

// Eval sets the policy to evaluation mode
func (c *ClippedGaussianTreeMLP) Eval() { c.eval = true }

// Train sets the policy to training mode
func (c *ClippedGaussianTreeMLP) Train() { c.eval = false }

// IsEval returns whether the policy is in evaluation mode
func (c *ClippedGaussianTreeMLP) IsEval() bool { return c.eval }

// Close closes the policy's VM, if it has one
func (c *ClippedGaussianTreeMLP) Close() error {
	if c.vm != nil {
		return c.vm.Close()
	}
	return nil
}
