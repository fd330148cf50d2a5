package sac

import (
	"math"
	"testing"

	"github.com/samuelfneumann/sac/network"
	"golang.org/x/exp/rand"
)

const tolerance = 1e-9

func TestValueTarget(t *testing.T) {
	q1 := []float64{1, -2}
	q2 := []float64{3, -4}
	logProb := []float64{0.5, -1, 2, 0}

	want := []float64{1 - 0.5*0.5, 1 + 0.5, -4 - 0.5*2, -4}
	have := valueTarget(q1, q2, logProb, 0.5)
	if len(have) != len(want) {
		t.Fatalf("want(%v) targets have(%v)", len(want), len(have))
	}
	for i := range want {
		if math.Abs(want[i]-have[i]) > tolerance {
			t.Errorf("target %v: want(%v) have(%v)", i, want[i], have[i])
		}
	}
}

func TestActorLossPerDimension(t *testing.T) {
	s := newAgent(t, testConfig(t))
	src := rand.NewSource(11)
	states := uniform(src, batchSize*stateDim)
	eps, err := s.actor.policy.SampleEpsilon()
	if err != nil {
		t.Fatal(err)
	}

	const alpha = 0.3
	q1, _, logProb, err := s.actor.evaluate(states, eps, alpha)
	if err != nil {
		t.Fatal(err)
	}
	if len(q1) != batchSize {
		t.Fatalf("want(%v) action values have(%v)", batchSize, len(q1))
	}
	if len(logProb) != batchSize*actionDim {
		t.Fatalf("want(%v) log probabilities have(%v)", batchSize*actionDim,
			len(logProb))
	}

	// Each action value is paired with the log probability of every
	// dimension of its action
	var want float64
	for k := range logProb {
		want += q1[k/actionDim] - alpha*logProb[k]
	}
	want = -want / float64(len(logProb))

	have, err := scalar(s.actor.lossVal)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(want-have) > tolerance {
		t.Errorf("actor loss: want(%v) have(%v)", want, have)
	}
}

func TestCriticLossPerDimension(t *testing.T) {
	s := newAgent(t, testConfig(t))
	src := rand.NewSource(12)
	states := uniform(src, batchSize*stateDim)
	actions := uniform(src, batchSize*actionDim)
	dcReturn := uniform(src, batchSize)
	qTarget := uniform(src, batchSize*actionDim)

	losses, err := s.critic.step(states, actions, dcReturn, qTarget)
	if err != nil {
		t.Fatal(err)
	}

	// The outputs hold the predictions made before the update
	outputs := make(map[string][]float64)
	for name, net := range map[string]network.NeuralNet{
		"Q1": s.critic.q1,
		"Q2": s.critic.q2,
		"V":  s.critic.v,
	} {
		data, err := network.Float64s(net.Output()[0])
		if err != nil {
			t.Fatal(err)
		}
		outputs[name] = data
	}

	var q1Loss, q2Loss, vLoss float64
	for i := 0; i < batchSize; i++ {
		q1Loss += math.Pow(outputs["Q1"][i]-dcReturn[i], 2)
		q2Loss += math.Pow(outputs["Q2"][i]-dcReturn[i], 2)
	}
	q1Loss /= batchSize
	q2Loss /= batchSize
	for k := range qTarget {
		vLoss += math.Pow(outputs["V"][k/actionDim]-qTarget[k], 2)
	}
	vLoss /= float64(len(qTarget))

	for _, test := range []struct {
		name       string
		want, have float64
	}{
		{"Q1", q1Loss, losses.q1},
		{"Q2", q2Loss, losses.q2},
		{"V", vLoss, losses.v},
		{"total", 0.5 * (q1Loss + q2Loss + vLoss), losses.total},
	} {
		if math.Abs(test.want-test.have) > tolerance {
			t.Errorf("%v loss: want(%v) have(%v)", test.name, test.want,
				test.have)
		}
	}
}

func TestTemperatureLossPerDimension(t *testing.T) {
	s := newAgent(t, testConfig(t))
	src := rand.NewSource(13)
	logProb := uniform(src, batchSize*actionDim)

	logAlpha := s.temperature.value()
	have, err := s.temperature.step(logProb)
	if err != nil {
		t.Fatal(err)
	}

	var gap float64
	for _, l := range logProb {
		gap += l - actionDim
	}
	want := -logAlpha * gap / float64(len(logProb))
	if math.Abs(want-have) > tolerance {
		t.Errorf("temperature loss: want(%v) have(%v)", want, have)
	}

	// A positive gap means the policy is too certain, which increases
	// log(α)
	if gap > 0 && s.temperature.value() <= logAlpha {
		t.Error("log(α) did not increase with a positive entropy gap")
	}
	if gap < 0 && s.temperature.value() >= logAlpha {
		t.Error("log(α) did not decrease with a negative entropy gap")
	}
}
