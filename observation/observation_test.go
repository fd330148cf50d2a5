package observation

import (
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestSplitVectorOnly(t *testing.T) {
	layout, err := NewLayout(3, 0, Resolution{})
	if err != nil {
		t.Fatal(err)
	}

	visual, vector, err := layout.Split(mat.NewVecDense(3, []float64{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	if visual != nil {
		t.Errorf("expected nil visual input but got %v", visual)
	}
	if !floats.Equal(vector.RawVector().Data, []float64{1, 2, 3}) {
		t.Errorf("want([1 2 3]) have(%v)", vector.RawVector().Data)
	}
}

func TestSplitVisual(t *testing.T) {
	res := Resolution{Height: 2, Width: 1, Channels: 2}
	layout, err := NewLayout(2, 2, res)
	if err != nil {
		t.Fatal(err)
	}
	if layout.Len() != 10 {
		t.Fatalf("want(10) have(%v)", layout.Len())
	}

	obs := mat.NewVecDense(10, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	visual, vector, err := layout.Split(obs)
	if err != nil {
		t.Fatal(err)
	}

	shape := visual.Shape()
	if len(shape) != 4 || shape[0] != 2 || shape[1] != 2 || shape[2] != 1 ||
		shape[3] != 2 {
		t.Errorf("invalid visual shape %v", shape)
	}
	if !floats.Equal(vector.RawVector().Data, []float64{8, 9}) {
		t.Errorf("want([8 9]) have(%v)", vector.RawVector().Data)
	}

	if _, _, err := layout.Split(mat.NewVecDense(3, nil)); err == nil {
		t.Error("expected error for wrong observation size")
	}
}

func TestNewLayoutInvalid(t *testing.T) {
	if _, err := NewLayout(-1, 0, Resolution{}); err == nil {
		t.Error("expected error for negative vector dimensions")
	}
	if _, err := NewLayout(2, 1, Resolution{Height: 0, Width: 1,
		Channels: 1}); err == nil {
		t.Error("expected error for invalid resolution")
	}
	if _, err := NewLayout(0, 0, Resolution{}); err == nil {
		t.Error("expected error for empty observations")
	}
}

func TestPreprocessor(t *testing.T) {
	res := Resolution{Height: 2, Width: 1, Channels: 2}
	layout, err := NewLayout(2, 2, res)
	if err != nil {
		t.Fatal(err)
	}
	encoder, err := NewMeanPool(2, res)
	if err != nil {
		t.Fatal(err)
	}
	pre, err := NewPreprocessor(layout, encoder)
	if err != nil {
		t.Fatal(err)
	}
	if pre.Features() != 6 {
		t.Fatalf("want(6) features have(%v)", pre.Features())
	}

	// Source 0 pixels: (0, 1), (2, 3); source 1 pixels: (4, 5), (6, 7)
	obs := mat.NewVecDense(10, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	features, err := pre.Process(obs)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 2, 5, 6, 8, 9}
	if !floats.Equal(features.RawVector().Data, want) {
		t.Errorf("want(%v) have(%v)", want, features.RawVector().Data)
	}

	batch := mat.NewDense(2, 10, nil)
	batch.SetRow(0, obs.RawVector().Data)
	batch.SetRow(1, obs.RawVector().Data)
	rows, err := pre.ProcessRows(batch)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(rows.RawRowView(1), want) {
		t.Errorf("want(%v) have(%v)", want, rows.RawRowView(1))
	}
}

func TestPreprocessorRequiresEncoder(t *testing.T) {
	layout, err := NewLayout(2, 1, Resolution{Height: 1, Width: 1,
		Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPreprocessor(layout, nil); err == nil {
		t.Error("expected error for visual input without an encoder")
	}
}
