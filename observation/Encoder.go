package observation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// Encoder encodes the visual part of an observation into a flat slice
// of features.
type Encoder interface {
	Features() int
	Encode(visual *tensor.Dense) ([]float64, error)
}

// MeanPool is an Encoder which encodes each channel of each visual
// source as the mean of the channel over all pixels.
type MeanPool struct {
	sources    int
	resolution Resolution
}

// NewMeanPool returns a new MeanPool encoder
func NewMeanPool(sources int, resolution Resolution) (*MeanPool, error) {
	if sources <= 0 || !resolution.valid() {
		return nil, fmt.Errorf("newMeanPool: invalid visual input with %v "+
			"sources and resolution %+v", sources, resolution)
	}
	return &MeanPool{sources: sources, resolution: resolution}, nil
}

// Features returns the number of features produced by the encoder
func (m *MeanPool) Features() int {
	return m.sources * m.resolution.Channels
}

// Encode encodes visual, which should have shape (sources, height,
// width, channels).
func (m *MeanPool) Encode(visual *tensor.Dense) ([]float64, error) {
	if visual == nil {
		return nil, fmt.Errorf("encode: nil visual input")
	}
	want := []int{m.sources, m.resolution.Height, m.resolution.Width,
		m.resolution.Channels}
	if !visual.Shape().Eq(tensor.Shape(want)) {
		return nil, fmt.Errorf("encode: invalid visual shape \n\twant(%v) "+
			"\n\thave(%v)", want, visual.Shape())
	}
	data, ok := visual.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("encode: expected float64 data but got %T",
			visual.Data())
	}

	pixels := m.resolution.Height * m.resolution.Width
	channels := m.resolution.Channels
	features := make([]float64, 0, m.Features())
	for s := 0; s < m.sources; s++ {
		frame := data[s*pixels*channels : (s+1)*pixels*channels]

		// Rows are pixels, columns are channels
		frameMat := mat.NewDense(pixels, channels, frame)
		for c := 0; c < channels; c++ {
			col := mat.Col(nil, c, frameMat)
			features = append(features, stat.Mean(col, nil))
		}
	}
	return features, nil
}

// Preprocessor converts composite observations into the flat feature
// vectors consumed by an agent: the encoded visual features followed
// by the vector features.
type Preprocessor struct {
	layout  *Layout
	encoder Encoder
}

// NewPreprocessor returns a new Preprocessor. The encoder may be nil
// only if the layout has no visual sources.
func NewPreprocessor(layout *Layout, encoder Encoder) (*Preprocessor,
	error) {
	if layout == nil {
		return nil, fmt.Errorf("newPreprocessor: nil layout")
	}
	if layout.Sources() > 0 && encoder == nil {
		return nil, fmt.Errorf("newPreprocessor: observations with visual " +
			"sources require an encoder")
	}
	return &Preprocessor{layout: layout, encoder: encoder}, nil
}

// InputLen returns the length of a raw observation
func (p *Preprocessor) InputLen() int {
	return p.layout.Len()
}

// Features returns the length of a processed observation
func (p *Preprocessor) Features() int {
	features := p.layout.VectorDims()
	if p.layout.Sources() > 0 {
		features += p.encoder.Features()
	}
	return features
}

// Process returns the flat features of obs
func (p *Preprocessor) Process(obs mat.Vector) (*mat.VecDense, error) {
	visual, vector, err := p.layout.Split(obs)
	if err != nil {
		return nil, fmt.Errorf("process: %v", err)
	}

	features := make([]float64, 0, p.Features())
	if visual != nil {
		encoded, err := p.encoder.Encode(visual)
		if err != nil {
			return nil, fmt.Errorf("process: could not encode visual "+
				"input: %v", err)
		}
		features = append(features, encoded...)
	}
	if vector != nil {
		features = append(features, vector.RawVector().Data...)
	}

	if len(features) != p.Features() {
		return nil, fmt.Errorf("process: encoder returned the wrong number "+
			"of features \n\twant(%v) \n\thave(%v)", p.Features(),
			len(features))
	}
	return mat.NewVecDense(len(features), features), nil
}

// ProcessRows processes each row of obs as a separate observation
func (p *Preprocessor) ProcessRows(obs mat.Matrix) (*mat.Dense, error) {
	rows, cols := obs.Dims()
	if cols != p.InputLen() {
		return nil, fmt.Errorf("processRows: invalid observation size "+
			"\n\twant(%v) \n\thave(%v)", p.InputLen(), cols)
	}

	out := mat.NewDense(rows, p.Features(), nil)
	row := mat.NewVecDense(cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row.SetVec(j, obs.At(i, j))
		}
		processed, err := p.Process(row)
		if err != nil {
			return nil, fmt.Errorf("processRows: row %v: %v", i, err)
		}
		out.SetRow(i, processed.RawVector().Data)
	}
	return out, nil
}
