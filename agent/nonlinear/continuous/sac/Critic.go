package sac

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/sac/network"
	"github.com/samuelfneumann/sac/solver"
	"github.com/samuelfneumann/sac/utils/floatutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// critic holds the twin action value functions Q1 and Q2, the state
// value function V, and the target state value function. Q1, Q2, and
// V share a single computational graph and are trained together on
// the combined critic loss. The target network lives in its own graph
// and is only ever moved toward V by Polyak averaging.
type critic struct {
	batchSize int

	q1, q2, v network.NeuralNet
	vm        G.VM

	vTarget   network.NeuralNet
	vTargetVM G.VM

	// Input nodes
	state    *G.Node
	action   *G.Node
	dcReturn *G.Node // r + γ v_target(s')
	qTarget  *G.Node // min(q1, q2)(s, ã) - α log π(ã|s), per action dimension

	q1LossVal, q2LossVal, vLossVal, lossVal G.Value

	model  []G.ValueGrad
	solver *solver.Solver
}

// criticLosses holds the losses of a single critic update
type criticLosses struct {
	q1, q2, v, total float64
}

// newCritic builds the critic graph. No VM is created until compile()
// is called, so that networks can still be cloned from the critic.
func newCritic(c Config, features int) (*critic, error) {
	g := G.NewGraph()
	batch := c.BatchSize

	state := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, features),
		G.WithName("State"),
		G.WithInit(G.Zeroes()),
	)
	action := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, c.ActionDim),
		G.WithName("Action"),
		G.WithInit(G.Zeroes()),
	)

	weightInit := c.WeightInit.InitWFn()
	biasInit := c.BiasInit.InitWFn()

	q1, err := network.NewSingleHeadMLPFromInput(
		[]*G.Node{state, action},
		g,
		c.CriticLayers,
		trues(len(c.CriticLayers)),
		weightInit,
		biasInit,
		c.activations(len(c.CriticLayers)),
		"Q1",
	)
	if err != nil {
		return nil, fmt.Errorf("newCritic: could not create Q1: %v", err)
	}

	q2, err := network.NewSingleHeadMLPFromInput(
		[]*G.Node{state, action},
		g,
		c.CriticLayers,
		trues(len(c.CriticLayers)),
		weightInit,
		biasInit,
		c.activations(len(c.CriticLayers)),
		"Q2",
	)
	if err != nil {
		return nil, fmt.Errorf("newCritic: could not create Q2: %v", err)
	}

	v, err := network.NewSingleHeadMLPFromInput(
		[]*G.Node{state},
		g,
		c.ValueLayers,
		trues(len(c.ValueLayers)),
		weightInit,
		biasInit,
		c.activations(len(c.ValueLayers)),
		"V",
	)
	if err != nil {
		return nil, fmt.Errorf("newCritic: could not create V: %v", err)
	}

	// The target network starts as a copy of V
	vTarget, err := v.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("newCritic: could not create target V: %v",
			err)
	}

	dcReturn := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, 1),
		G.WithName("DiscountedReturn"),
		G.WithInit(G.Zeroes()),
	)
	qTarget := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, c.ActionDim),
		G.WithName("ValueTarget"),
		G.WithInit(G.Zeroes()),
	)

	q1Loss := mse(q1.Prediction()[0], dcReturn)
	q2Loss := mse(q2.Prediction()[0], dcReturn)
	vLoss := mse(v.Prediction()[0], qTarget)

	half := G.NewConstant(0.5, G.WithName("Half"))
	loss := G.Must(G.Add(q1Loss, q2Loss))
	loss = G.Must(G.Add(loss, vLoss))
	loss = G.Must(G.Mul(loss, half))

	cr := &critic{
		batchSize: batch,
		q1:        q1,
		q2:        q2,
		v:         v,
		vTarget:   vTarget,
		state:     state,
		action:    action,
		dcReturn:  dcReturn,
		qTarget:   qTarget,
		solver:    c.Solver.Clone(),
	}
	G.Read(q1Loss, &cr.q1LossVal)
	G.Read(q2Loss, &cr.q2LossVal)
	G.Read(vLoss, &cr.vLossVal)
	G.Read(loss, &cr.lossVal)

	if _, err := G.Grad(loss, cr.learnables()...); err != nil {
		return nil, fmt.Errorf("newCritic: could not compute critic "+
			"gradient: %v", err)
	}

	return cr, nil
}

// mse adds nodes to the graph of pred which compute the mean squared
// error between pred and target. If target has more columns than pred,
// the single column of pred is broadcast over the columns of target.
func mse(pred, target *G.Node) *G.Node {
	var loss *G.Node
	if pred.Shape().Eq(target.Shape()) {
		loss = G.Must(G.Sub(pred, target))
	} else {
		loss = G.Must(G.BroadcastSub(pred, target, []byte{1}, nil))
	}
	loss = G.Must(G.Square(loss))
	return G.Must(G.Mean(loss))
}

// learnables returns the learnables of Q1, Q2, and V
func (c *critic) learnables() G.Nodes {
	var learnables G.Nodes
	learnables = append(learnables, c.q1.Learnables()...)
	learnables = append(learnables, c.q2.Learnables()...)
	learnables = append(learnables, c.v.Learnables()...)
	return learnables
}

// compile creates the VMs which run the critic and target graphs
func (c *critic) compile() {
	learnables := c.learnables()
	c.vm = G.NewTapeMachine(c.q1.Graph(), G.BindDualValues(learnables...))
	c.vTargetVM = G.NewTapeMachine(c.vTarget.Graph())

	c.model = make([]G.ValueGrad, 0, len(learnables))
	c.model = append(c.model, c.q1.Model()...)
	c.model = append(c.model, c.q2.Model()...)
	c.model = append(c.model, c.v.Model()...)
}

// softUpdate moves the target network toward V
func (c *critic) softUpdate(ployak float64) error {
	return network.Polyak(c.vTarget, c.v, ployak)
}

// discountedReturn returns r + γ v_target(s') for a batch of rewards
// and next states. The result is a constant with respect to all
// losses.
func (c *critic) discountedReturn(reward, nextState []float64,
	gamma float64) ([]float64, error) {
	if err := c.vTarget.SetInput(nextState); err != nil {
		return nil, fmt.Errorf("discountedReturn: %v", err)
	}

	defer c.vTargetVM.Reset()
	if err := c.vTargetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("discountedReturn: could not run target "+
			"network: %v", err)
	}

	nextValues, err := network.Float64s(c.vTarget.Output()[0])
	if err != nil {
		return nil, fmt.Errorf("discountedReturn: %v", err)
	}

	dcReturn := make([]float64, len(reward))
	for i := range reward {
		dcReturn[i] = reward[i] + gamma*nextValues[i]
	}
	return dcReturn, nil
}

// step takes a single gradient step on the combined critic loss
func (c *critic) step(state, action, dcReturn,
	qTarget []float64) (criticLosses, error) {
	inputs := []struct {
		node *G.Node
		data []float64
	}{
		{c.state, state},
		{c.action, action},
		{c.dcReturn, dcReturn},
		{c.qTarget, qTarget},
	}
	for _, input := range inputs {
		if err := let(input.node, input.data); err != nil {
			return criticLosses{}, fmt.Errorf("step: %v", err)
		}
	}

	defer c.vm.Reset()
	if err := c.vm.RunAll(); err != nil {
		return criticLosses{}, fmt.Errorf("step: could not run critic: %v",
			err)
	}

	var losses criticLosses
	var err error
	for _, l := range []struct {
		dst *float64
		val G.Value
	}{
		{&losses.q1, c.q1LossVal},
		{&losses.q2, c.q2LossVal},
		{&losses.v, c.vLossVal},
		{&losses.total, c.lossVal},
	} {
		if *l.dst, err = scalar(l.val); err != nil {
			return criticLosses{}, fmt.Errorf("step: %v", err)
		}
	}

	if !floatutils.AllFinite([]float64{losses.q1, losses.q2, losses.v}) {
		network.ZeroGrad(c.model)
		return losses, fmt.Errorf("step: critic loss %v: %w", losses.total,
			ErrNumericalInstability)
	}

	if err := c.solver.Step(c.model); err != nil {
		if errors.Is(err, solver.ErrNonFinite) {
			network.ZeroGrad(c.model)
			return losses, fmt.Errorf("step: %w: %w", ErrNumericalInstability,
				err)
		}
		return losses, fmt.Errorf("step: could not step critic: %v", err)
	}

	return losses, nil
}

// close closes the critic's VMs
func (c *critic) close() error {
	return errors.Join(c.vm.Close(), c.vTargetVM.Close())
}

// let sets the value of an input node, keeping its shape
func let(node *G.Node, data []float64) error {
	shape := node.Shape()
	if len(data) != shape.TotalSize() {
		return fmt.Errorf("could not set %v: invalid number of values "+
			"\n\twant(%v) \n\thave(%v)", node.Name(), shape.TotalSize(),
			len(data))
	}
	t := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return G.Let(node, t)
}

// scalar returns the single float64 held in v
func scalar(v G.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("scalar: nil value")
	}
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
		return 0, fmt.Errorf("scalar: value has %v elements", len(data))
	default:
		return 0, fmt.Errorf("scalar: expected float64 data but got %T",
			v.Data())
	}
}

// trues returns a slice of n true values
func trues(n int) []bool {
	b := make([]bool, n)
	for i := range b {
		b[i] = true
	}
	return b
}
