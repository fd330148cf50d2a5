// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be JSON serialized into configuration files and
// have their learning rates adjusted during training.
package solver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// ErrNonFinite is returned by a Solver when a gradient contains a NaN
// or infinite value. No weights are changed in such a case.
var ErrNonFinite = errors.New("non-finite gradient")

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// Solver wraps Gorgonia Solvers so that they can be JSON marshalled and
// unmarshalled.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// learnRateSetter is a G.Solver whose learning rate can be changed
// without losing its internal state.
type learnRateSetter interface {
	SetLearnRate(float64)
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// Clone returns a new Solver with the same configuration as s but no
// internal state. Each set of weights should be stepped by its own
// Solver.
func (s *Solver) Clone() *Solver {
	return &Solver{
		Solver: s.Config.Create(),
		Type:   s.Type,
		Config: s.Config,
	}
}

// SetLearnRate sets the learning rate of the Solver. Solvers with
// internal state (e.g. moment estimates) keep their state.
func (s *Solver) SetLearnRate(learnRate float64) error {
	if learnRate <= 0 || math.IsNaN(learnRate) || math.IsInf(learnRate, 0) {
		return fmt.Errorf("setLearnRate: learning rate must be positive "+
			"and finite but got %v", learnRate)
	}

	if setter, ok := s.Solver.(learnRateSetter); ok {
		setter.SetLearnRate(learnRate)
		return nil
	}

	// Stateless solvers can be recreated with the new learning rate
	s.Solver = s.Config.WithLearnRate(learnRate).Create()
	return nil
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Vanilla): reflect.TypeOf(VanillaConfig{}),
			string(Adam):    reflect.TypeOf(AdamConfig{}),
		})
	if err != nil {
		return err
	}

	s.Type = typeName
	s.Config = config
	s.Solver = s.Config.Create()

	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName, ok := m[typeJsonField].(string)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalConfig: missing field %q",
			typeJsonField)
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unmarshalConfig: unknown solver type %q",
			typeName)
	}
	value := reflect.New(ty).Interface()

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool

	// WithLearnRate returns a copy of the Config with a new learning
	// rate
	WithLearnRate(float64) Config
}

// gradData returns the weights and gradient of a learnable as float64
// slices which alias the learnable's values.
func gradData(vg G.ValueGrad) ([]float64, []float64, error) {
	weights, ok := vg.Value().Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("learnable %v is not a float64 tensor",
			vg)
	}

	grad, err := vg.Grad()
	if err != nil {
		return nil, nil, fmt.Errorf("learnable %v has no gradient: %v", vg,
			err)
	}
	gradient, ok := grad.Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("gradient of %v is not a float64 tensor",
			vg)
	}

	if len(weights) != len(gradient) {
		return nil, nil, fmt.Errorf("gradient of %v has incompatible size "+
			"\n\twant(%v) \n\thave(%v)", vg, len(weights), len(gradient))
	}
	return weights, gradient, nil
}
