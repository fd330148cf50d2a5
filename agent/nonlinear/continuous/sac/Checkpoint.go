package sac

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/sac/network"
	G "gorgonia.org/gorgonia"
)

const (
	// CheckpointPattern matches the names of checkpoint files in the
	// checkpoint directory
	CheckpointPattern = "sac*.ckpt"

	// ExportFile is the name of the file that the policy is exported to
	ExportFile = "policy.json"
)

// checkpoint is the serialized state of a SAC agent. Solver state is
// not saved.
type checkpoint struct {
	Actor   [][]float64
	Q1      [][]float64
	Q2      [][]float64
	V       [][]float64
	VTarget [][]float64

	LogAlpha   float64
	GlobalStep int
	Episode    int
}

// CheckpointPath returns the path of a checkpoint named with the
// argument suffix in the checkpoint directory, matching
// CheckpointPattern
func (s *SAC) CheckpointPath(suffix string) string {
	return filepath.Join(s.config.CheckpointDir, "sac"+suffix+".ckpt")
}

// Save saves the agent's parameters and counters to path. The file is
// written atomically.
func (s *SAC) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ckpt := checkpoint{
		Actor:      network.Weights(s.actor.policy.Network()),
		Q1:         network.Weights(s.critic.q1),
		Q2:         network.Weights(s.critic.q2),
		V:          network.Weights(s.critic.v),
		VTarget:    network.Weights(s.critic.vTarget),
		LogAlpha:   s.temperature.value(),
		GlobalStep: s.globalStep,
		Episode:    s.episode,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sac-*.tmp")
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(ckpt); err != nil {
		tmp.Close()
		return fmt.Errorf("save: could not encode checkpoint: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load restores the agent's parameters and counters from the
// checkpoint at path
func (s *SAC) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(path)
}

func (s *SAC) load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}
	defer f.Close()

	var ckpt checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return fmt.Errorf("load: could not decode checkpoint %v: %v", path,
			err)
	}

	// Validate everything before changing any weights
	nets := []struct {
		name    string
		net     network.NeuralNet
		weights [][]float64
	}{
		{"actor", s.actor.policy.Network(), ckpt.Actor},
		{"Q1", s.critic.q1, ckpt.Q1},
		{"Q2", s.critic.q2, ckpt.Q2},
		{"V", s.critic.v, ckpt.V},
		{"target V", s.critic.vTarget, ckpt.VTarget},
	}
	for _, n := range nets {
		if err := compatible(n.net, n.weights); err != nil {
			return fmt.Errorf("load: %v: %v", n.name, err)
		}
	}
	if !finite(ckpt.LogAlpha) || ckpt.GlobalStep < 0 || ckpt.Episode < 0 {
		return fmt.Errorf("load: corrupt checkpoint counters")
	}

	for _, n := range nets {
		if err := network.SetWeights(n.net, n.weights); err != nil {
			return fmt.Errorf("load: %v: %v", n.name, err)
		}
	}
	if err := s.actor.syncCritic(s.critic.q1, s.critic.q2); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := network.Set(s.behaviour.Network(),
		s.actor.policy.Network()); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := s.temperature.set(ckpt.LogAlpha); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	s.globalStep = ckpt.GlobalStep
	s.episode = ckpt.Episode

	return nil
}

// compatible returns an error if weights cannot be set as the weights
// of net
func compatible(net network.NeuralNet, weights [][]float64) error {
	current := network.Weights(net)
	if len(current) != len(weights) {
		return fmt.Errorf("want %v learnables but got %v", len(current),
			len(weights))
	}
	for i := range current {
		if len(current[i]) != len(weights[i]) {
			return fmt.Errorf("learnable %v: want %v weights but got %v", i,
				len(current[i]), len(weights[i]))
		}
	}
	return nil
}

// exported is the policy written by Export
type exported struct {
	Config     Config
	GlobalStep int
	Actor      [][]float64
}

// Export writes the configuration and policy weights of the agent as
// JSON to ExportFile in the export directory, and returns the path of
// the file.
func (s *SAC) Export() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(exported{
		Config:     s.config,
		GlobalStep: s.globalStep,
		Actor:      network.Weights(s.actor.policy.Network()),
	}, "", "\t")
	if err != nil {
		return "", fmt.Errorf("export: %v", err)
	}

	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return "", fmt.Errorf("export: %v", err)
	}
	path := filepath.Join(s.config.ExportDir, ExportFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("export: %v", err)
	}
	return path, nil
}

// writeGraphs writes each computational graph of the agent to dir in
// the DOT format
func (s *SAC) writeGraphs(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("writeGraphs: %v", err)
	}

	graphs := map[string]*G.ExprGraph{
		"critic.dot":      s.critic.q1.Graph(),
		"target.dot":      s.critic.vTarget.Graph(),
		"actor.dot":       s.actor.policy.Network().Graph(),
		"behaviour.dot":   s.behaviour.Network().Graph(),
		"temperature.dot": s.temperature.logAlpha.Graph(),
	}
	for name, g := range graphs {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(g.ToDot()), 0o644); err != nil {
			return fmt.Errorf("writeGraphs: %v", err)
		}
	}
	return nil
}
