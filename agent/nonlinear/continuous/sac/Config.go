package sac

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/samuelfneumann/sac/agent"
	"github.com/samuelfneumann/sac/initwfn"
	"github.com/samuelfneumann/sac/network"
	"github.com/samuelfneumann/sac/observation"
	"github.com/samuelfneumann/sac/solver"
	"gopkg.in/yaml.v3"
)

// Config implements a configuration of a SAC agent
type Config struct {
	// Observation and action spaces. Observations consist of
	// VisualSources visual sources of resolution VisualResolution
	// followed by StateDim vector features.
	StateDim         int
	VisualSources    int
	VisualResolution observation.Resolution
	ActionDim        int
	ActionType       agent.ActionType

	// Entropy temperature. If AutoAdaption is false, the temperature
	// is fixed at Alpha.
	Alpha        float64
	AutoAdaption bool

	Gamma  float64
	Ployak float64 // Weight of the old target network in soft updates

	// The learning rate decays linearly from LearningRate to
	// EndLearningRate over MaxEpisode episodes
	LearningRate    float64
	EndLearningRate float64
	MaxEpisode      int

	BatchSize  int
	BufferSize int

	CheckpointDir string
	LogDir        string
	ExportDir     string
	Logger2File   bool // Log to a file in LogDir instead of stderr
	OutGraph      bool // Write computational graphs to LogDir

	// Offset added to the standard deviation of the policy
	StdOffset float64

	// Hidden layers of the Q functions and the state value function
	CriticLayers []int
	ValueLayers  []int

	// Hidden layers of the root network and of each leaf network of
	// the policy. A final layer of ActionDim units is always added to
	// each leaf network.
	ActorRootLayers []int
	ActorLeafLayers []int

	// Activation of each hidden layer
	Activation *network.Activation

	WeightInit *initwfn.InitWFn
	BiasInit   *initwfn.InitWFn

	// Solver used for each set of parameters. Each set of parameters
	// gets its own copy, and the learning rate is overwritten by the
	// learning rate schedule.
	Solver *solver.Solver
}

// DefaultConfig returns the default configuration of a SAC agent
// acting with actionDim dimensional actions in an environment with
// stateDim dimensional observations.
func DefaultConfig(stateDim, actionDim int) Config {
	weightInit, err := initwfn.NewGaussian(0, 0.1)
	if err != nil {
		panic(err)
	}
	biasInit, err := initwfn.NewConstant(0.1)
	if err != nil {
		panic(err)
	}
	adam, err := solver.NewAdam(5e-4, 1e-8, 0.9, 0.999, 0)
	if err != nil {
		panic(err)
	}

	return Config{
		StateDim:   stateDim,
		ActionDim:  actionDim,
		ActionType: agent.Continuous,

		Alpha:        0.2,
		AutoAdaption: true,

		Gamma:  0.99,
		Ployak: 0.995,

		LearningRate:    5e-4,
		EndLearningRate: 1e-10,
		MaxEpisode:      50000,

		BatchSize:  100,
		BufferSize: 10000,

		CheckpointDir: filepath.Join("models", "sac"),
		LogDir:        filepath.Join("logs", "sac"),
		ExportDir:     filepath.Join("export", "sac"),

		StdOffset: 0.01,

		CriticLayers:    []int{256, 256},
		ValueLayers:     []int{256, 256},
		ActorRootLayers: []int{128},
		ActorLeafLayers: []int{64},
		Activation:      network.ReLU(),

		WeightInit: weightInit,
		BiasInit:   biasInit,
		Solver:     adam,
	}
}

// Type returns the type of agent constructed by the Config
func (c Config) Type() agent.Type {
	return agent.SAC
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.StateDim < 0 || c.VisualSources < 0 {
		return fmt.Errorf("validate: state dimension (%v) and visual "+
			"sources (%v) must be non-negative", c.StateDim, c.VisualSources)
	}
	if c.StateDim+c.VisualSources == 0 {
		return fmt.Errorf("validate: observations must have vector or " +
			"visual features")
	}
	if c.ActionDim <= 0 {
		return fmt.Errorf("validate: action dimension must be positive "+
			"but got %v", c.ActionDim)
	}
	if c.ActionType != agent.Continuous {
		return fmt.Errorf("validate: only %v actions are supported but "+
			"got %q", agent.Continuous, c.ActionType)
	}

	if c.Alpha <= 0 || !finite(c.Alpha) {
		return fmt.Errorf("validate: alpha must be positive but got %v",
			c.Alpha)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1] but got %v",
			c.Gamma)
	}
	if c.Ployak < 0 || c.Ployak > 1 {
		return fmt.Errorf("validate: ployak must be in [0, 1] but got %v",
			c.Ployak)
	}

	schedule := solver.PolynomialDecay{
		Initial:    c.LearningRate,
		End:        c.EndLearningRate,
		DecaySteps: c.MaxEpisode,
		Power:      1,
	}
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("validate: invalid learning rate schedule: %v", err)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: cannot have batch size %v < 1",
			c.BatchSize)
	}
	if c.BufferSize < c.BatchSize {
		return fmt.Errorf("validate: buffer size (%v) must be at least "+
			"the batch size (%v)", c.BufferSize, c.BatchSize)
	}
	if c.StdOffset <= 0 {
		return fmt.Errorf("validate: standard deviation offset must be "+
			"positive but got %v", c.StdOffset)
	}

	for name, layers := range map[string][]int{
		"critic":     c.CriticLayers,
		"value":      c.ValueLayers,
		"actor root": c.ActorRootLayers,
	} {
		if len(layers) == 0 {
			return fmt.Errorf("validate: %v network must have at least "+
				"one hidden layer", name)
		}
	}
	for _, layers := range [][]int{c.CriticLayers, c.ValueLayers,
		c.ActorRootLayers, c.ActorLeafLayers} {
		for _, units := range layers {
			if units <= 0 {
				return fmt.Errorf("validate: layers must have a positive "+
					"number of units but got %v", units)
			}
		}
	}

	if c.Activation == nil || c.Activation.IsNil() {
		return fmt.Errorf("validate: hidden layers require an activation")
	}
	if c.WeightInit == nil || c.BiasInit == nil {
		return fmt.Errorf("validate: weight and bias initializers must " +
			"be specified")
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: solver must be specified")
	}
	if c.VisualSources > 0 && (c.VisualResolution.Height <= 0 ||
		c.VisualResolution.Width <= 0 || c.VisualResolution.Channels <= 0) {
		return fmt.Errorf("validate: invalid visual resolution %+v",
			c.VisualResolution)
	}

	return nil
}

// schedule returns the learning rate schedule of the Config
func (c Config) schedule() solver.PolynomialDecay {
	return solver.PolynomialDecay{
		Initial:    c.LearningRate,
		End:        c.EndLearningRate,
		DecaySteps: c.MaxEpisode,
		Power:      1,
	}
}

// activations returns n copies of the hidden layer activation
func (c Config) activations(n int) []*network.Activation {
	acts := make([]*network.Activation, n)
	for i := range acts {
		acts[i] = c.Activation
	}
	return acts
}

// LoadConfig loads a Config from a JSON or YAML file. YAML files must
// have a .yaml or .yml extension. Fields missing from the file keep
// the values of DefaultConfig(0, 0), so the file should at least set
// the state and action dimensions.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loadConfig: %v", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return Config{}, fmt.Errorf("loadConfig: %v", err)
		}
	}

	c := DefaultConfig(0, 0)
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("loadConfig: could not decode %v: %v",
			path, err)
	}
	return c, nil
}

// SaveConfig writes c to path as JSON, or as YAML if path has a .yaml
// or .yml extension.
func SaveConfig(c Config, path string) error {
	data, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return fmt.Errorf("saveConfig: %v", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("saveConfig: %v", err)
		}
		if data, err = yaml.Marshal(m); err != nil {
			return fmt.Errorf("saveConfig: %v", err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("saveConfig: %v", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// yamlToJSON converts a YAML document to JSON so that the custom JSON
// unmarshallers of the Config fields can be used.
func yamlToJSON(data []byte) ([]byte, error) {
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("yamlToJSON: %v", err)
	}
	return json.Marshal(m)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
