// Package expreplay implements experience replay buffers
package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/sac/timestep"
	"gonum.org/v1/gonum/mat"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	SampleMethod      SelectorType
	SampleSize        int
	MinReplayCapacity int
	MaxReplayCapacity int
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(featureSize, actionSize int,
	seed uint64) (ExperienceReplayer, error) {
	sampler, err := CreateSelector(c.SampleMethod, c.SampleSize, seed)
	if err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}

	return New(sampler, c.MinReplayCapacity, c.MaxReplayCapacity, featureSize,
		actionSize)
}

// ExperienceReplayer implements an experience replay buffer. Data is
// removed from the buffer first-in-first-out once the buffer reaches
// its maximum capacity.
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Store adds a batch of transitions to the buffer. Each row of the
	// arguments is a single transition. Rewards and done flags are
	// column vectors, with done = 1 on terminal transitions.
	Store(state, action, reward, nextState, done mat.Matrix) error

	// Sample samples a batch of experience from the buffer and returns
	// the batch of states, actions, rewards, next states, and done
	// flags. Row i of each returned matrix corresponds to transition i.
	Sample() (state, action, reward, nextState, done *mat.Dense, err error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int

	// FeatureSize returns the size of the stored state vectors
	FeatureSize() int

	// ActionSize returns the size of the stored action vectors
	ActionSize() int
}

// cache implements a concrete ExperienceReplayer as a ring buffer.
// Once full, each new transition overwrites the oldest one.
type cache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	doneCache      []float64
	nextStateCache []float64

	currentInUsePos int
	isFull          bool

	// Outlines how data is sampled
	sampler Selector

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

// New creates and returns a new ExperienceReplayer. The sampler
// parameter is a Selector which determines how data is sampled from
// the replay buffer. The featureSize and actionSize parameters define
// the size of the feature and action vectors.
//
// Pixel observations should be flattened before adding to the buffer.
func New(sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize int) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("new: maxCapacity (%v) must be >= "+
			"minCapacity (%v)", maxCapacity, minCapacity)
	}
	if sampler.BatchSize() <= 0 {
		return nil, fmt.Errorf("new: batch size must be > 0")
	}
	if maxCapacity < sampler.BatchSize() {
		return nil, fmt.Errorf("new: cannot have batch size(%v) > max "+
			"buffer capacity (%v)", sampler.BatchSize(), maxCapacity)
	}
	if featureSize <= 0 || actionSize <= 0 {
		return nil, fmt.Errorf("new: feature size (%v) and action size (%v) "+
			"must be > 0", featureSize, actionSize)
	}

	return &cache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		nextStateCache: make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		doneCache:      make([]float64, maxCapacity),

		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// String returns the string representation of the cache
func (c *cache) String() string {
	baseStr := "Capacity: %v/%v \nStates: %v \nActions: %v \nRewards: %v" +
		" \nDone: %v \nNext States: %v"
	return fmt.Sprintf(baseStr, c.Capacity(), c.MaxCapacity(), c.stateCache,
		c.actionCache, c.rewardCache, c.doneCache, c.nextStateCache)
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (c *cache) BatchSize() int {
	return c.sampler.BatchSize()
}

// FeatureSize returns the size of stored state vectors
func (c *cache) FeatureSize() int {
	return c.featureSize
}

// ActionSize returns the size of stored action vectors
func (c *cache) ActionSize() int {
	return c.actionSize
}

// insertOrder returns the first n indices of the buffer in the order
// they were inserted, oldest first.
func (c *cache) insertOrder(n int) []int {
	size := c.Capacity()
	if n > size {
		n = size
	}

	oldest := 0
	if c.isFull {
		oldest = c.currentInUsePos
	}

	order := make([]int, n)
	for i := range order {
		order[i] = (oldest + i) % c.maxCapacity
	}
	return order
}

// Sample samples and returns a batch of transitions from the replay
// buffer.
func (c *cache) Sample() (*mat.Dense, *mat.Dense, *mat.Dense, *mat.Dense,
	*mat.Dense, error) {
	if c.Capacity() == 0 {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
		return nil, nil, nil, nil, nil, err
	}
	if c.Capacity() < c.MinCapacity() {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
		return nil, nil, nil, nil, nil, err
	}

	indices := c.sampler.choose(c)
	batch := len(indices)

	stateBatch := make([]float64, batch*c.featureSize)
	nextStateBatch := make([]float64, batch*c.featureSize)
	actionBatch := make([]float64, batch*c.actionSize)
	rewardBatch := make([]float64, batch)
	doneBatch := make([]float64, batch)

	for i, index := range indices {
		batchStartInd := i * c.featureSize
		expStartInd := index * c.featureSize
		copy(stateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.stateCache[expStartInd:expStartInd+c.featureSize])
		copy(nextStateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.nextStateCache[expStartInd:expStartInd+c.featureSize])

		batchStartInd = i * c.actionSize
		expStartInd = index * c.actionSize
		copy(actionBatch[batchStartInd:batchStartInd+c.actionSize],
			c.actionCache[expStartInd:expStartInd+c.actionSize])

		rewardBatch[i] = c.rewardCache[index]
		doneBatch[i] = c.doneCache[index]
	}

	return mat.NewDense(batch, c.featureSize, stateBatch),
		mat.NewDense(batch, c.actionSize, actionBatch),
		mat.NewDense(batch, 1, rewardBatch),
		mat.NewDense(batch, c.featureSize, nextStateBatch),
		mat.NewDense(batch, 1, doneBatch),
		nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *cache) Capacity() int {
	if c.isFull {
		return c.maxCapacity
	}
	return c.currentInUsePos
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *cache) MinCapacity() int {
	return c.minCapacity
}

// Add adds a transition to the cache
func (c *cache) Add(t timestep.Transition) error {
	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			c.actionSize, t.Action.Len())
	}

	done := 0.0
	if t.Done {
		done = 1.0
	}
	c.insert(rawVector(t.State), rawVector(t.Action), t.Reward,
		rawVector(t.NextState), done)
	return nil
}

// Store adds a batch of transitions to the cache
func (c *cache) Store(state, action, reward, nextState,
	done mat.Matrix) error {
	rows, stateCols := state.Dims()
	if stateCols != c.featureSize {
		return fmt.Errorf("store: invalid feature size \n\twant(%v)"+
			"\n\thave(%v)", c.featureSize, stateCols)
	}
	if r, cols := nextState.Dims(); r != rows || cols != c.featureSize {
		return fmt.Errorf("store: invalid next state shape \n\twant(%v, %v)"+
			"\n\thave(%v, %v)", rows, c.featureSize, r, cols)
	}
	if r, cols := action.Dims(); r != rows || cols != c.actionSize {
		return fmt.Errorf("store: invalid action shape \n\twant(%v, %v)"+
			"\n\thave(%v, %v)", rows, c.actionSize, r, cols)
	}
	if r, cols := reward.Dims(); r != rows || cols != 1 {
		return fmt.Errorf("store: invalid reward shape \n\twant(%v, 1)"+
			"\n\thave(%v, %v)", rows, r, cols)
	}
	if r, cols := done.Dims(); r != rows || cols != 1 {
		return fmt.Errorf("store: invalid done shape \n\twant(%v, 1)"+
			"\n\thave(%v, %v)", rows, r, cols)
	}

	for i := 0; i < rows; i++ {
		c.insert(
			mat.Row(nil, i, state),
			mat.Row(nil, i, action),
			reward.At(i, 0),
			mat.Row(nil, i, nextState),
			done.At(i, 0),
		)
	}
	return nil
}

// insert copies a single transition into the slot at the current
// position, overwriting the oldest transition if the cache is full.
func (c *cache) insert(state, action []float64, reward float64,
	nextState []float64, done float64) {
	index := c.currentInUsePos

	stateInd := index * c.featureSize
	copy(c.stateCache[stateInd:stateInd+c.featureSize], state)
	copy(c.nextStateCache[stateInd:stateInd+c.featureSize], nextState)

	actionInd := index * c.actionSize
	copy(c.actionCache[actionInd:actionInd+c.actionSize], action)

	c.rewardCache[index] = reward
	c.doneCache[index] = done

	c.currentInUsePos = (c.currentInUsePos + 1) % c.maxCapacity
	if c.currentInUsePos == 0 {
		c.isFull = true
	}
}

// rawVector returns the elements of v as a slice
func rawVector(v mat.Vector) []float64 {
	if vec, ok := v.(mat.RawVectorer); ok && vec.RawVector().Inc == 1 {
		return vec.RawVector().Data[:v.Len()]
	}
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}
