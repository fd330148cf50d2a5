package sac

import (
	"errors"
	"fmt"
	"math"

	"github.com/samuelfneumann/sac/network"
	"github.com/samuelfneumann/sac/solver"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// temperature holds the entropy temperature α, stored as log(α) so
// that α = exp(log(α)) is always positive. log(α) is only trained if
// auto adaption is enabled.
type temperature struct {
	auto       bool
	actionDims float64

	logAlpha *G.Node
	gap      *G.Node // log π(ã|s) - action dimensions, per action dimension
	lossVal  G.Value
	vm       G.VM

	solver *solver.Solver
}

func newTemperature(c Config) (*temperature, error) {
	g := G.NewGraph()

	logAlpha := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, 1),
		G.WithName("LogAlpha"),
		G.WithInit(G.ValuesOf(math.Log(c.Alpha))),
	)
	gap := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(c.BatchSize, c.ActionDim),
		G.WithName("EntropyGap"),
		G.WithInit(G.Zeroes()),
	)

	// -mean(log(α) * (log π(ã|s) - action dimensions)) over the batch
	// and action dimensions. The gap is an input and so receives no
	// gradient, which lets log(α) be factored out of the mean.
	loss := G.Must(G.Mean(gap))
	loss = G.Must(G.Mul(loss, logAlpha))
	loss = G.Must(G.Mean(loss))
	loss = G.Must(G.Neg(loss))

	t := &temperature{
		auto:       c.AutoAdaption,
		actionDims: float64(c.ActionDim),
		logAlpha:   logAlpha,
		gap:        gap,
		solver:     c.Solver.Clone(),
	}
	G.Read(loss, &t.lossVal)

	if _, err := G.Grad(loss, logAlpha); err != nil {
		return nil, fmt.Errorf("newTemperature: could not compute "+
			"gradient: %v", err)
	}

	return t, nil
}

// compile creates the VM which trains log(α). Without auto adaption,
// there is nothing to run.
func (t *temperature) compile() {
	if t.auto {
		t.vm = G.NewTapeMachine(t.logAlpha.Graph(),
			G.BindDualValues(t.logAlpha))
	}
}

// value returns log(α)
func (t *temperature) value() float64 {
	data, err := network.Float64s(t.logAlpha.Value())
	if err != nil {
		panic(fmt.Sprintf("value: %v", err))
	}
	return data[0]
}

// set sets log(α)
func (t *temperature) set(logAlpha float64) error {
	if !finite(logAlpha) {
		return fmt.Errorf("set: log(α) must be finite but got %v", logAlpha)
	}
	data, err := network.Float64s(t.logAlpha.Value())
	if err != nil {
		return fmt.Errorf("set: %v", err)
	}
	data[0] = logAlpha
	return nil
}

// alpha returns α
func (t *temperature) alpha() float64 {
	return math.Exp(t.value())
}

// step takes a single gradient step on the temperature loss given the
// log probability of each dimension of actions sampled from the
// updated policy, and returns the loss.
func (t *temperature) step(logProb []float64) (float64, error) {
	if !t.auto {
		return 0, fmt.Errorf("step: temperature is fixed")
	}

	gap := make([]float64, len(logProb))
	for i := range logProb {
		gap[i] = logProb[i] - t.actionDims
	}
	if err := let(t.gap, gap); err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}

	defer t.vm.Reset()
	if err := t.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("step: could not run temperature graph: %v",
			err)
	}

	loss, err := scalar(t.lossVal)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}
	model := []G.ValueGrad{t.logAlpha}
	if !finite(loss) {
		network.ZeroGrad(model)
		return loss, fmt.Errorf("step: temperature loss %v: %w", loss,
			ErrNumericalInstability)
	}

	if err := t.solver.Step(model); err != nil {
		if errors.Is(err, solver.ErrNonFinite) {
			network.ZeroGrad(model)
			return loss, fmt.Errorf("step: %w: %w", ErrNumericalInstability,
				err)
		}
		return loss, fmt.Errorf("step: could not step temperature: %v", err)
	}
	return loss, nil
}

// close closes the temperature VM, if there is one
func (t *temperature) close() error {
	if t.vm != nil {
		return t.vm.Close()
	}
	return nil
}
