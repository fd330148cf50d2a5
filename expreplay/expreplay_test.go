package expreplay

import (
	"testing"

	"github.com/samuelfneumann/sac/timestep"
	"gonum.org/v1/gonum/mat"
)

// transitions returns n transitions where transition i has every
// element of its state, action, and next state equal to i and reward i.
func transitions(n, features, actions int) (s, a, r, next, done *mat.Dense) {
	s = mat.NewDense(n, features, nil)
	next = mat.NewDense(n, features, nil)
	a = mat.NewDense(n, actions, nil)
	r = mat.NewDense(n, 1, nil)
	done = mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < features; j++ {
			s.Set(i, j, float64(i))
			next.Set(i, j, float64(i)+0.5)
		}
		for j := 0; j < actions; j++ {
			a.Set(i, j, float64(i))
		}
		r.Set(i, 0, float64(i))
		if i%2 == 0 {
			done.Set(i, 0, 1)
		}
	}
	return
}

func TestSampleShapes(t *testing.T) {
	replay, err := Config{
		SampleMethod:      Uniform,
		SampleSize:        4,
		MinReplayCapacity: 4,
		MaxReplayCapacity: 10,
	}.Create(3, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := replay.Store(transitions(6, 3, 2)); err != nil {
		t.Fatal(err)
	}

	s, a, r, next, done, err := replay.Sample()
	if err != nil {
		t.Fatal(err)
	}

	check := func(name string, m *mat.Dense, rows, cols int) {
		if r, c := m.Dims(); r != rows || c != cols {
			t.Errorf("%v: want(%v, %v) have(%v, %v)", name, rows, cols, r, c)
		}
	}
	check("state", s, 4, 3)
	check("action", a, 4, 2)
	check("reward", r, 4, 1)
	check("next state", next, 4, 3)
	check("done", done, 4, 1)

	// Rows must stay aligned across the returned batches
	for i := 0; i < 4; i++ {
		id := r.At(i, 0)
		if s.At(i, 0) != id || a.At(i, 1) != id || next.At(i, 2) != id+0.5 {
			t.Errorf("row %v is not a single transition", i)
		}
		wantDone := 0.0
		if int(id)%2 == 0 {
			wantDone = 1
		}
		if done.At(i, 0) != wantDone {
			t.Errorf("row %v: done want(%v) have(%v)", i, wantDone,
				done.At(i, 0))
		}
	}
}

func TestInsufficientSamples(t *testing.T) {
	replay, err := New(NewUniformSelector(2, 1), 5, 10, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, _, _, _, err := replay.Sample(); !IsEmptyBuffer(err) {
		t.Errorf("want empty buffer error, have %v", err)
	}

	if err := replay.Store(transitions(3, 1, 1)); err != nil {
		t.Fatal(err)
	}
	_, _, _, _, _, err = replay.Sample()
	if !IsInsufficientSamples(err) {
		t.Errorf("want insufficient samples error, have %v", err)
	}
}

func TestFifoRemoval(t *testing.T) {
	replay, err := New(NewFifoSelector(3), 1, 3, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := replay.Store(transitions(5, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if replay.Capacity() != 3 {
		t.Fatalf("capacity: want(3) have(%v)", replay.Capacity())
	}

	// Transitions 0 and 1 were overwritten, oldest first
	_, _, r, _, _, err := replay.Sample()
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{2, 3, 4} {
		if have := r.At(i, 0); have != want {
			t.Errorf("row %v: want(%v) have(%v)", i, want, have)
		}
	}
}

func TestAddTransition(t *testing.T) {
	replay, err := New(NewFifoSelector(1), 1, 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	first := timestep.New(timestep.First, 0, 0.99,
		mat.NewVecDense(2, []float64{1, 2}), 0)
	last := timestep.New(timestep.Last, 5, 0,
		mat.NewVecDense(2, []float64{3, 4}), 1)
	action := mat.NewVecDense(1, []float64{-0.5})

	if err := replay.Add(timestep.NewTransition(first, action, last)); err != nil {
		t.Fatal(err)
	}

	s, a, r, next, done, err := replay.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if s.At(0, 1) != 2 || a.At(0, 0) != -0.5 || r.At(0, 0) != 5 ||
		next.At(0, 0) != 3 || done.At(0, 0) != 1 {
		t.Errorf("unexpected transition: s=%v a=%v r=%v next=%v done=%v",
			mat.Formatted(s), mat.Formatted(a), mat.Formatted(r),
			mat.Formatted(next), mat.Formatted(done))
	}

	bad := mat.NewVecDense(2, nil)
	if err := replay.Add(timestep.NewTransition(first, bad, last)); err == nil {
		t.Error("expected error for invalid action size")
	}
}

func TestStoreValidatesShapes(t *testing.T) {
	replay, err := New(NewUniformSelector(1, 1), 1, 10, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	s, a, r, next, done := transitions(2, 3, 2)
	if err := replay.Store(s, a, mat.NewDense(2, 2, nil), next, done); err == nil {
		t.Error("expected error for reward that is not a column")
	}
	if err := replay.Store(s, mat.NewDense(1, 2, nil), r, next, done); err == nil {
		t.Error("expected error for mismatched number of rows")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(NewUniformSelector(20, 1), 1, 10, 1, 1); err == nil {
		t.Error("expected error for batch size > max capacity")
	}
	if _, err := New(NewUniformSelector(1, 1), 0, 10, 1, 1); err == nil {
		t.Error("expected error for min capacity 0")
	}
	if _, err := CreateSelector("Prioritized", 1, 1); err == nil {
		t.Error("expected error for unknown selector")
	}
}
