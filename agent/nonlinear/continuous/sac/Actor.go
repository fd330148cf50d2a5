package sac

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/sac/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/sac/network"
	"github.com/samuelfneumann/sac/solver"
	"github.com/samuelfneumann/sac/utils/floatutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// actor holds the policy being trained together with copies of Q1 and
// Q2 which take the actions sampled by the policy as input. The Q
// copies must be synced with the critic's Q functions before each
// actor update. Only the policy is trained on the actor loss.
type actor struct {
	batchSize  int
	actionDims int

	policy *policy.ClippedGaussianTreeMLP
	q1, q2 network.NeuralNet
	vm     G.VM

	alpha   *G.Node
	lossVal G.Value

	model  []G.ValueGrad
	solver *solver.Solver
}

// newActor builds the actor graph, using q1 and q2 as the action value
// functions to clone into the graph. No VM is created until compile()
// is called.
func newActor(c Config, features int, q1, q2 network.NeuralNet,
	seed uint64) (*actor, error) {
	leafLayers := append(append([]int{}, c.ActorLeafLayers...), c.ActionDim)
	leafActs := c.activations(len(c.ActorLeafLayers))

	pol, err := policy.NewClippedGaussianTreeMLP(
		features,
		c.ActionDim,
		c.BatchSize,
		G.NewGraph(),
		c.ActorRootLayers,
		trues(len(c.ActorRootLayers)),
		c.activations(len(c.ActorRootLayers)),
		[][]int{leafLayers, leafLayers},
		[][]bool{trues(len(leafLayers)), trues(len(leafLayers))},
		[][]*network.Activation{
			append(append([]*network.Activation{}, leafActs...),
				network.TanH()),
			append(append([]*network.Activation{}, leafActs...),
				network.Sigmoid()),
		},
		c.WeightInit.InitWFn(),
		c.BiasInit.InitWFn(),
		c.StdOffset,
		seed,
	)
	if err != nil {
		return nil, fmt.Errorf("newActor: could not create policy: %v", err)
	}

	g := pol.Network().Graph()
	inputs := []*G.Node{pol.Network().Input(), pol.ActionNode()}

	q1Clone, err := q1.CloneWithInputTo(1, inputs, g)
	if err != nil {
		return nil, fmt.Errorf("newActor: could not clone Q1: %v", err)
	}
	q2Clone, err := q2.CloneWithInputTo(1, inputs, g)
	if err != nil {
		return nil, fmt.Errorf("newActor: could not clone Q2: %v", err)
	}

	alpha := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(c.BatchSize, c.ActionDim),
		G.WithName("Alpha"),
		G.WithInit(G.ValuesOf(c.Alpha)),
	)

	// -mean(q1(s, ã) - α log π(ã|s)), where q1 is broadcast over the
	// log probability of each action dimension
	entropyPenalty := G.Must(G.HadamardProd(alpha, pol.LogProbNode()))
	loss := G.Must(G.BroadcastSub(q1Clone.Prediction()[0], entropyPenalty,
		[]byte{1}, nil))
	loss = G.Must(G.Mean(loss))
	loss = G.Must(G.Neg(loss))

	a := &actor{
		batchSize:  c.BatchSize,
		actionDims: c.ActionDim,
		policy:     pol,
		q1:         q1Clone,
		q2:         q2Clone,
		alpha:      alpha,
		solver:     c.Solver.Clone(),
	}
	G.Read(loss, &a.lossVal)

	if _, err := G.Grad(loss, pol.Network().Learnables()...); err != nil {
		return nil, fmt.Errorf("newActor: could not compute policy "+
			"gradient: %v", err)
	}

	return a, nil
}

// compile creates the VM which runs the actor graph
func (a *actor) compile() {
	learnables := a.policy.Network().Learnables()
	a.vm = G.NewTapeMachine(a.policy.Network().Graph(),
		G.BindDualValues(learnables...))
	a.model = a.policy.Network().Model()
}

// syncCritic sets the weights of the actor's Q functions to those of
// q1 and q2
func (a *actor) syncCritic(q1, q2 network.NeuralNet) error {
	if err := network.Set(a.q1, q1); err != nil {
		return fmt.Errorf("syncCritic: could not set Q1: %v", err)
	}
	if err := network.Set(a.q2, q2); err != nil {
		return fmt.Errorf("syncCritic: could not set Q2: %v", err)
	}
	return nil
}

// run runs the actor graph with the given states, noise, and
// temperature. The computed gradients are kept only if keepGrad is
// true.
func (a *actor) run(state, eps []float64, alpha float64,
	keepGrad bool) error {
	if err := a.policy.SetInput(state); err != nil {
		return err
	}
	if err := a.policy.SetEpsilon(eps); err != nil {
		return err
	}
	alphas := make([]float64, a.batchSize*a.actionDims)
	for i := range alphas {
		alphas[i] = alpha
	}
	if err := let(a.alpha, alphas); err != nil {
		return err
	}

	defer a.vm.Reset()
	if err := a.vm.RunAll(); err != nil {
		return fmt.Errorf("could not run actor: %v", err)
	}
	if !keepGrad {
		network.ZeroGrad(a.model)
	}
	return nil
}

// evaluate runs the actor graph forward and returns the action values
// of both Q functions, one per sample, and the log probability of each
// dimension of each sampled action, in row major order.
func (a *actor) evaluate(state, eps []float64, alpha float64) (q1, q2,
	logProb []float64, err error) {
	if err := a.run(state, eps, alpha, false); err != nil {
		return nil, nil, nil, fmt.Errorf("evaluate: %v", err)
	}

	if q1, err = copyValue(a.q1.Output()[0]); err != nil {
		return nil, nil, nil, fmt.Errorf("evaluate: Q1: %w", err)
	}
	if q2, err = copyValue(a.q2.Output()[0]); err != nil {
		return nil, nil, nil, fmt.Errorf("evaluate: Q2: %w", err)
	}
	logProb = append([]float64{}, a.policy.LogProb()...)
	if !floatutils.AllFinite(logProb) {
		return nil, nil, nil, fmt.Errorf("evaluate: non-finite log "+
			"probability: %w", ErrNumericalInstability)
	}
	return q1, q2, logProb, nil
}

// step takes a single gradient step on the actor loss and returns
// the loss
func (a *actor) step(state, eps []float64, alpha float64) (float64,
	error) {
	if err := a.run(state, eps, alpha, true); err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}

	loss, err := scalar(a.lossVal)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}
	if !finite(loss) {
		network.ZeroGrad(a.model)
		return loss, fmt.Errorf("step: actor loss %v: %w", loss,
			ErrNumericalInstability)
	}

	if err := a.solver.Step(a.model); err != nil {
		if errors.Is(err, solver.ErrNonFinite) {
			network.ZeroGrad(a.model)
			return loss, fmt.Errorf("step: %w: %w", ErrNumericalInstability,
				err)
		}
		return loss, fmt.Errorf("step: could not step actor: %v", err)
	}
	return loss, nil
}

// close closes the actor's VMs
func (a *actor) close() error {
	return errors.Join(a.vm.Close(), a.policy.Close())
}

// copyValue returns a copy of the data in a float64 Value
func copyValue(v G.Value) ([]float64, error) {
	data, err := network.Float64s(v)
	if err != nil {
		return nil, err
	}
	if !floatutils.AllFinite(data) {
		return nil, fmt.Errorf("non-finite value: %w",
			ErrNumericalInstability)
	}
	return append([]float64{}, data...), nil
}
