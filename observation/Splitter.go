// Package observation splits composite observations into their visual
// and vector parts and encodes the visual parts into flat features.
package observation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Resolution is the resolution of a single visual source
type Resolution struct {
	Height   int
	Width    int
	Channels int
}

// Size returns the number of values in a single frame of the visual
// source
func (r Resolution) Size() int {
	return r.Height * r.Width * r.Channels
}

func (r Resolution) valid() bool {
	return r.Height > 0 && r.Width > 0 && r.Channels > 0
}

// Splitter splits an observation into its visual and vector parts.
// The visual part is nil if the observation has no visual sources.
type Splitter interface {
	Split(obs mat.Vector) (*tensor.Dense, *mat.VecDense, error)
}

// Layout describes how a flat observation is laid out: each visual
// source is flattened in (height, width, channel) order and the visual
// sources come first, followed by the vector features.
type Layout struct {
	vectorDims int
	sources    int
	resolution Resolution
}

// NewLayout returns a new Layout with vectorDims vector features and
// sources visual sources of the argument resolution.
func NewLayout(vectorDims, sources int, resolution Resolution) (*Layout,
	error) {
	if vectorDims < 0 {
		return nil, fmt.Errorf("newLayout: vector dimensions must be "+
			"non-negative but got %v", vectorDims)
	}
	if sources < 0 {
		return nil, fmt.Errorf("newLayout: number of visual sources must "+
			"be non-negative but got %v", sources)
	}
	if sources > 0 && !resolution.valid() {
		return nil, fmt.Errorf("newLayout: invalid visual resolution %+v",
			resolution)
	}
	if vectorDims+sources == 0 {
		return nil, fmt.Errorf("newLayout: observations must have at least " +
			"one vector feature or visual source")
	}

	return &Layout{
		vectorDims: vectorDims,
		sources:    sources,
		resolution: resolution,
	}, nil
}

// Len returns the length of a flat observation
func (l *Layout) Len() int {
	return l.sources*l.resolution.Size() + l.vectorDims
}

// VectorDims returns the number of vector features in an observation
func (l *Layout) VectorDims() int {
	return l.vectorDims
}

// Sources returns the number of visual sources in an observation
func (l *Layout) Sources() int {
	return l.sources
}

// Resolution returns the resolution of each visual source
func (l *Layout) Resolution() Resolution {
	return l.resolution
}

// Split splits obs into a visual tensor of shape (sources, height,
// width, channels) and a vector of features.
func (l *Layout) Split(obs mat.Vector) (*tensor.Dense, *mat.VecDense,
	error) {
	if obs.Len() != l.Len() {
		return nil, nil, fmt.Errorf("split: invalid observation size "+
			"\n\twant(%v) \n\thave(%v)", l.Len(), obs.Len())
	}

	visualLen := l.sources * l.resolution.Size()
	var visual *tensor.Dense
	if l.sources > 0 {
		backing := make([]float64, visualLen)
		for i := range backing {
			backing[i] = obs.AtVec(i)
		}
		visual = tensor.New(
			tensor.WithShape(l.sources, l.resolution.Height,
				l.resolution.Width, l.resolution.Channels),
			tensor.WithBacking(backing),
		)
	}

	if l.vectorDims == 0 {
		return visual, nil, nil
	}
	vector := mat.NewVecDense(l.vectorDims, nil)
	for i := 0; i < l.vectorDims; i++ {
		vector.SetVec(i, obs.AtVec(visualLen+i))
	}
	return visual, vector, nil
}
