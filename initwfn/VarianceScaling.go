package initwfn

import G "gorgonia.org/gorgonia"

// VarianceScalingConfig configures an initializer which scales the
// variance of the initial weights by the fan-in and fan-out of a
// layer, as in the Glorot and He initialization algorithms. Which
// algorithm and which distribution is used is determined by Kind.
type VarianceScalingConfig struct {
	Kind Type
	Gain float64
}

// NewGlorotU returns a new Glorot uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(VarianceScalingConfig{Kind: GlorotU, Gain: gain})
}

// NewGlorotN returns a new Glorot normal weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	return newInitWFn(VarianceScalingConfig{Kind: GlorotN, Gain: gain})
}

// NewHeU returns a new He uniform weight initializer
func NewHeU(gain float64) (*InitWFn, error) {
	return newInitWFn(VarianceScalingConfig{Kind: HeU, Gain: gain})
}

// NewHeN returns a new He normal weight initializer
func NewHeN(gain float64) (*InitWFn, error) {
	return newInitWFn(VarianceScalingConfig{Kind: HeN, Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (v VarianceScalingConfig) Type() Type {
	return v.Kind
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn. Unknown kinds fall back to Glorot uniform.
func (v VarianceScalingConfig) Create() G.InitWFn {
	switch v.Kind {
	case GlorotN:
		return G.GlorotN(v.Gain)
	case HeU:
		return G.HeU(v.Gain)
	case HeN:
		return G.HeN(v.Gain)
	default:
		return G.GlorotU(v.Gain)
	}
}
