package network

import G "gorgonia.org/gorgonia"

// NewSingleHeadMLP returns an MLP with a single output node. This
// function is a convenience function for calling NewMultiHeadMLP with
// an output size of 1.
//
// See NewMultiHeadMLP for more details.
func NewSingleHeadMLP(features, batch int, g *G.ExprGraph, hiddenSizes []int,
	biases []bool, weightInit, biasInit G.InitWFn, activations []*Activation,
	prefix string) (*MultiHeadMLP, error) {
	return NewMultiHeadMLP(features, batch, 1, g, hiddenSizes, biases,
		weightInit, biasInit, activations, prefix)
}

// NewSingleHeadMLPFromInput returns an MLP with a single output node
// which takes the argument nodes as input. State-action value
// functions are built this way by passing both the state and action
// nodes as input.
//
// See NewMultiHeadMLPFromInput for more details.
func NewSingleHeadMLPFromInput(inputs []*G.Node, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, weightInit, biasInit G.InitWFn,
	activations []*Activation, prefix string) (*MultiHeadMLP, error) {
	return NewMultiHeadMLPFromInput(inputs, 1, g, hiddenSizes, biases,
		weightInit, biasInit, activations, prefix)
}
