// Package sac implements the Soft Actor-Critic algorithm with twin Q
// functions, a state value function with a soft-updated target
// network, and automatic entropy temperature adaption.
package sac

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samuelfneumann/sac/agent"
	"github.com/samuelfneumann/sac/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/sac/checkpointer"
	"github.com/samuelfneumann/sac/expreplay"
	"github.com/samuelfneumann/sac/network"
	"github.com/samuelfneumann/sac/observation"
	"github.com/samuelfneumann/sac/recorder"
	"github.com/samuelfneumann/sac/solver"
	ts "github.com/samuelfneumann/sac/timestep"
	"github.com/samuelfneumann/sac/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

// SAC implements the Soft Actor-Critic algorithm. Each call to Learn
// performs, in order:
//
//  1. A soft update of the target state value function toward the
//     state value function
//  2. A gradient step on the combined loss of Q1, Q2, and V
//  3. A gradient step on the policy, using the updated Q1
//  4. If enabled, a gradient step on the entropy temperature, using
//     actions from the updated policy
//
// All methods lock the agent, so calls from multiple goroutines are
// serialized.
type SAC struct {
	mu sync.Mutex

	config   Config
	schedule solver.PolynomialDecay
	pre      *observation.Preprocessor
	replay   expreplay.ExperienceReplayer
	recorder recorder.Recorder
	logger   *recorder.Logger

	// behaviour selects actions one observation at a time and has its
	// own VM
	behaviour   *policy.ClippedGaussianTreeMLP
	critic      *critic
	actor       *actor
	temperature *temperature

	prevStep    ts.TimeStep
	hasPrevStep bool

	episode    int
	globalStep int
	summary    recorder.Summary
}

// New returns a new SAC agent. Summaries of each update are recorded
// with rec, which may be nil. The encoder encodes the visual part of
// observations and may be nil if c.VisualSources is 0.
//
// If c.CheckpointDir holds a checkpoint, the agent is restored from
// the most recent one.
func New(c Config, seed uint64, rec recorder.Recorder,
	enc observation.Encoder) (*SAC, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	layout, err := observation.NewLayout(c.StateDim, c.VisualSources,
		c.VisualResolution)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	pre, err := observation.NewPreprocessor(layout, enc)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	features := pre.Features()

	replayConfig := expreplay.Config{
		SampleMethod:      expreplay.Uniform,
		SampleSize:        c.BatchSize,
		MinReplayCapacity: c.BatchSize,
		MaxReplayCapacity: c.BufferSize,
	}
	replay, err := replayConfig.Create(features, c.ActionDim, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not construct experience "+
			"replay buffer: %v", err)
	}

	// Build all graphs before any VM is created, since networks are
	// cloned between graphs
	cr, err := newCritic(c, features)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	ac, err := newActor(c, features, cr.q1, cr.q2, seed+1)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	temp, err := newTemperature(c)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	behaviour, err := ac.policy.CloneWithBatch(1, seed+2)
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour policy: %v",
			err)
	}

	cr.compile()
	ac.compile()
	temp.compile()

	var logger *recorder.Logger
	if c.Logger2File {
		if logger, err = recorder.NewFileLogger(c.LogDir); err != nil {
			return nil, fmt.Errorf("new: %v", err)
		}
	} else {
		logger = recorder.NewLogger(os.Stderr)
	}

	if rec == nil {
		rec = recorder.Nop{}
	}

	s := &SAC{
		config:      c,
		schedule:    c.schedule(),
		pre:         pre,
		replay:      replay,
		recorder:    rec,
		logger:      logger,
		behaviour:   behaviour,
		critic:      cr,
		actor:       ac,
		temperature: temp,
		summary:     recorder.Summary{},
	}

	if c.OutGraph {
		if err := s.writeGraphs(c.LogDir); err != nil {
			s.Close()
			return nil, fmt.Errorf("new: %v", err)
		}
	}

	if err := s.restore(); err != nil {
		s.Close()
		return nil, fmt.Errorf("new: %v", err)
	}

	return s, nil
}

// restore loads the most recent checkpoint in the checkpoint
// directory, if there is one
func (s *SAC) restore() error {
	if s.config.CheckpointDir == "" {
		return nil
	}

	pattern := filepath.Join(s.config.CheckpointDir, CheckpointPattern)
	path, ok, err := checkpointer.Latest(pattern)
	if err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if !ok {
		s.logger.Printf("initializing new agent, no checkpoint in %v",
			s.config.CheckpointDir)
		return nil
	}

	if err := s.load(path); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	s.logger.Printf("restored agent from %v at global step %v", path,
		s.globalStep)
	return nil
}

// features returns obs as a processed feature slice
func (s *SAC) features(obs mat.Vector) ([]float64, error) {
	if obs.Len() != s.pre.InputLen() {
		return nil, fmt.Errorf("invalid observation size \n\twant(%v) "+
			"\n\thave(%v): %w", s.pre.InputLen(), obs.Len(), ErrDimension)
	}
	processed, err := s.pre.Process(obs)
	if err != nil {
		return nil, err
	}
	return processed.RawVector().Data, nil
}

// ChooseAction returns an action sampled from the policy in
// observation obs. Each element of the action is in [-1, 1].
func (s *SAC) ChooseAction(obs mat.Vector) (*mat.VecDense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	features, err := s.features(obs)
	if err != nil {
		return nil, fmt.Errorf("chooseAction: %w", err)
	}
	action, err := s.behaviour.SampleAction(features)
	if err != nil {
		return nil, fmt.Errorf("chooseAction: %v", err)
	}
	return action, nil
}

// ChooseInferenceAction returns the mean action of the policy in
// observation obs. Calls with the same observation return the same
// action as long as Learn is not called in between.
func (s *SAC) ChooseInferenceAction(obs mat.Vector) (*mat.VecDense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	features, err := s.features(obs)
	if err != nil {
		return nil, fmt.Errorf("chooseInferenceAction: %w", err)
	}
	action, err := s.behaviour.MeanAction(features)
	if err != nil {
		return nil, fmt.Errorf("chooseInferenceAction: %v", err)
	}
	return action, nil
}

// ChooseActions returns an action sampled from the policy for each
// row of obs, which holds one observation per parallel environment.
func (s *SAC) ChooseActions(obs mat.Matrix) (*mat.Dense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, cols := obs.Dims()
	if cols != s.pre.InputLen() {
		return nil, fmt.Errorf("chooseActions: invalid observation size "+
			"\n\twant(%v) \n\thave(%v): %w", s.pre.InputLen(), cols,
			ErrDimension)
	}

	actions := mat.NewDense(rows, s.behaviour.ActionDims(), nil)
	for i := 0; i < rows; i++ {
		row := mat.NewVecDense(cols, mat.Row(nil, i, obs))
		features, err := s.features(row)
		if err != nil {
			return nil, fmt.Errorf("chooseActions: %w", err)
		}
		action, err := s.behaviour.SampleAction(features)
		if err != nil {
			return nil, fmt.Errorf("chooseActions: %v", err)
		}
		actions.SetRow(i, action.RawVector().Data)
	}
	return actions, nil
}

// StoreTransition stores a batch of transitions in the replay buffer.
// Row i of state, action, and nextState together with reward[i] and
// done[i] form a single transition. A done value of 1 marks a
// terminal transition.
func (s *SAC) StoreTransition(state, action mat.Matrix, reward,
	done []float64, nextState mat.Matrix) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.storeTransition(state, action, reward, done, nextState)
}

func (s *SAC) storeTransition(state, action mat.Matrix, reward,
	done []float64, nextState mat.Matrix) error {
	rows, stateCols := state.Dims()
	if rows == 0 {
		return fmt.Errorf("storeTransition: no transitions given: %w",
			ErrDimension)
	}
	if stateCols != s.pre.InputLen() {
		return fmt.Errorf("storeTransition: invalid state size \n\twant(%v) "+
			"\n\thave(%v): %w", s.pre.InputLen(), stateCols, ErrDimension)
	}
	if r, c := nextState.Dims(); r != rows || c != stateCols {
		return fmt.Errorf("storeTransition: invalid next state shape "+
			"\n\twant(%v, %v) \n\thave(%v, %v): %w", rows, stateCols, r, c,
			ErrDimension)
	}
	if r, c := action.Dims(); r != rows || c != s.config.ActionDim {
		return fmt.Errorf("storeTransition: invalid action shape "+
			"\n\twant(%v, %v) \n\thave(%v, %v): %w", rows,
			s.config.ActionDim, r, c, ErrDimension)
	}
	if len(reward) != rows || len(done) != rows {
		return fmt.Errorf("storeTransition: want %v rewards and done "+
			"flags but got %v and %v: %w", rows, len(reward), len(done),
			ErrDimension)
	}

	processedState, err := s.pre.ProcessRows(state)
	if err != nil {
		return fmt.Errorf("storeTransition: %v", err)
	}
	processedNext, err := s.pre.ProcessRows(nextState)
	if err != nil {
		return fmt.Errorf("storeTransition: %v", err)
	}

	// Rewards and done flags are stored as column vectors
	rewardCol := mat.NewDense(rows, 1, append([]float64{}, reward...))
	doneCol := mat.NewDense(rows, 1, append([]float64{}, done...))

	err = s.replay.Store(processedState, action, rewardCol, processedNext,
		doneCol)
	if err != nil {
		return fmt.Errorf("storeTransition: %v", err)
	}
	return nil
}

// Learn samples a batch from the replay buffer and performs a single
// update of all parameters. The episode determines the learning rate.
// If the replay buffer does not yet hold a full batch, the returned
// error satisfies expreplay.IsInsufficientSamples or
// expreplay.IsEmptyBuffer and nothing is updated.
func (s *SAC) Learn(episode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.learn(episode)
}

func (s *SAC) learn(episode int) error {
	state, action, reward, nextState, _, err := s.replay.Sample()
	if err != nil {
		return fmt.Errorf("learn: could not sample batch: %w", err)
	}
	states := state.RawMatrix().Data
	actions := action.RawMatrix().Data
	rewards := reward.RawMatrix().Data
	nextStates := nextState.RawMatrix().Data

	s.episode = episode
	lr := s.schedule.At(episode)
	for _, sol := range []*solver.Solver{s.critic.solver, s.actor.solver,
		s.temperature.solver} {
		if err := sol.SetLearnRate(lr); err != nil {
			return fmt.Errorf("learn: %v", err)
		}
	}

	// Target network update
	if err := s.critic.softUpdate(s.config.Ployak); err != nil {
		return fmt.Errorf("learn: could not update target network: %v", err)
	}
	dcReturn, err := s.critic.discountedReturn(rewards, nextStates,
		s.config.Gamma)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	if !floatutils.AllFinite(dcReturn) {
		return fmt.Errorf("learn: non-finite discounted return: %w",
			ErrNumericalInstability)
	}

	// Value targets use fresh actions from the current policy. The
	// same noise is used for the actor and temperature updates.
	eps, err := s.actor.policy.SampleEpsilon()
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	alpha := s.temperature.alpha()
	q1, q2, logProb, err := s.actor.evaluate(states, eps, alpha)
	if err != nil {
		return fmt.Errorf("learn: %w", err)
	}
	qTarget := valueTarget(q1, q2, logProb, alpha)

	// Critic update
	criticLosses, err := s.critic.step(states, actions, dcReturn, qTarget)
	if err != nil {
		return fmt.Errorf("learn: %w", err)
	}
	s.globalStep++

	// Actor update
	if err := s.actor.syncCritic(s.critic.q1, s.critic.q2); err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	actorLoss, err := s.actor.step(states, eps, alpha)
	if err != nil {
		return fmt.Errorf("learn: %w", err)
	}
	entropy := s.actor.policy.Entropy()
	if err := network.Set(s.behaviour.Network(),
		s.actor.policy.Network()); err != nil {
		return fmt.Errorf("learn: could not set behaviour policy: %v", err)
	}

	summary := recorder.Summary{
		recorder.ActorLoss:    actorLoss,
		recorder.CriticLoss:   criticLosses.total,
		recorder.Entropy:      entropy,
		recorder.LearningRate: lr,
		recorder.Q1Loss:       criticLosses.q1,
		recorder.Q2Loss:       criticLosses.q2,
		recorder.ValueLoss:    criticLosses.v,
	}

	// Temperature update, using the updated policy
	if s.temperature.auto {
		_, _, logProb, err := s.actor.evaluate(states, eps, alpha)
		if err != nil {
			return fmt.Errorf("learn: %w", err)
		}
		alphaLoss, err := s.temperature.step(logProb)
		if err != nil {
			return fmt.Errorf("learn: %w", err)
		}
		summary[recorder.AlphaLoss] = alphaLoss
	}
	summary[recorder.Alpha] = s.temperature.alpha()

	s.summary = summary
	if err := s.recorder.Record(s.globalStep, summary.Clone()); err != nil {
		return fmt.Errorf("learn: could not record summary: %v", err)
	}
	return nil
}

// valueTarget returns min(q1, q2) - α log π(ã|s) for each action
// dimension. The action values hold one element per sample and are
// broadcast over the log probability of each dimension of the sample.
func valueTarget(q1, q2, logProb []float64, alpha float64) []float64 {
	minQ := floatutils.ElemMin(nil, q1, q2)
	dims := len(logProb) / len(minQ)

	target := make([]float64, len(logProb))
	for i := range target {
		target[i] = minQ[i/dims] - alpha*logProb[i]
	}
	return target
}

// SelectAction selects an action at timestep t. In evaluation mode,
// the mean action is selected.
func (s *SAC) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Observation == nil {
		return nil, fmt.Errorf("selectAction: nil observation")
	}
	features, err := s.features(t.Observation)
	if err != nil {
		return nil, fmt.Errorf("selectAction: %w", err)
	}

	step := t.WithObservation(mat.NewVecDense(len(features), features))
	action, err := s.behaviour.SelectAction(step)
	if err != nil {
		return nil, fmt.Errorf("selectAction: %v", err)
	}
	return action, nil
}

// ObserveFirst records the first timestep of an episode
func (s *SAC) ObserveFirst(t ts.TimeStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.First() {
		s.logger.Printf("warning: ObserveFirst() should only be called on "+
			"the first timestep (current timestep = %d)", t.Number)
	}
	s.prevStep = t
	s.hasPrevStep = true
	return nil
}

// Observe records that action in the previous timestep led to
// nextStep, and stores the transition in the replay buffer
func (s *SAC) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasPrevStep {
		return fmt.Errorf("observe: ObserveFirst() must be called before " +
			"Observe()")
	}
	if !nextStep.First() {
		transition := ts.NewTransition(s.prevStep, action, nextStep)
		if err := s.storeSingle(transition); err != nil {
			return fmt.Errorf("observe: %w", err)
		}
	}
	s.prevStep = nextStep
	return nil
}

// storeSingle stores a single transition in the replay buffer after
// processing its states
func (s *SAC) storeSingle(t ts.Transition) error {
	if t.State == nil || t.NextState == nil || t.Action == nil {
		return fmt.Errorf("storeSingle: incomplete transition")
	}
	if t.Action.Len() != s.config.ActionDim {
		return fmt.Errorf("storeSingle: invalid action size \n\twant(%v) "+
			"\n\thave(%v): %w", s.config.ActionDim, t.Action.Len(),
			ErrDimension)
	}

	state, err := s.features(t.State)
	if err != nil {
		return fmt.Errorf("storeSingle: state: %w", err)
	}
	nextState, err := s.features(t.NextState)
	if err != nil {
		return fmt.Errorf("storeSingle: next state: %w", err)
	}
	t.State = mat.NewVecDense(len(state), state)
	t.NextState = mat.NewVecDense(len(nextState), nextState)

	if err := s.replay.Add(t); err != nil {
		return fmt.Errorf("storeSingle: %v", err)
	}
	return nil
}

// Step performs a single update using the current episode. Nothing is
// updated until the replay buffer holds enough samples.
func (s *SAC) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.learn(s.episode)
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	return err
}

// EndEpisode increments the episode counter
func (s *SAC) EndEpisode() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.episode++
	s.hasPrevStep = false
}

// Eval sets the agent to evaluation mode
func (s *SAC) Eval() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviour.Eval()
}

// Train sets the agent to training mode
func (s *SAC) Train() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviour.Train()
}

// IsEval returns whether the agent is in evaluation mode
func (s *SAC) IsEval() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.behaviour.IsEval()
}

// Alpha returns the entropy temperature
func (s *SAC) Alpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperature.alpha()
}

// LogAlpha returns the log of the entropy temperature
func (s *SAC) LogAlpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperature.value()
}

// GlobalStep returns the number of critic updates taken
func (s *SAC) GlobalStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalStep
}

// Episode returns the last episode passed to Learn, or the number of
// episodes ended with EndEpisode
func (s *SAC) Episode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episode
}

// LearningRate returns the learning rate used at episode
func (s *SAC) LearningRate(episode int) float64 {
	return s.schedule.At(episode)
}

// Summary returns the summary of the last update
func (s *SAC) Summary() recorder.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.Clone()
}

// Config returns the configuration of the agent
func (s *SAC) Config() Config {
	return s.config
}

// Close closes the agent's VMs, the log file if there is one, and the
// recorder
func (s *SAC) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return errors.Join(
		s.critic.close(),
		s.actor.close(),
		s.temperature.close(),
		s.behaviour.Close(),
		s.logger.Close(),
		s.recorder.Close(),
	)
}

var _ agent.Closer = &SAC{}
