package initwfn

import (
	"encoding/json"
	"math"
	"testing"

	"gorgonia.org/tensor"
)

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Type
	}{
		{"gaussian", `{"Type": "Gaussian", "Config": {"Mean": 0, "StdDev": 0.1}}`,
			Gaussian},
		{"constant", `{"Type": "Constant", "Config": {"Value": 0.1}}`, Constant},
		{"zeroes", `{"Type": "Zeroes"}`, Zeroes},
		{"ones", `{"Type": "Ones", "Config": {}}`, Ones},
		{"glorotN", `{"Type": "GlorotN", "Config": {"Gain": 1}}`, GlorotN},
		{"heU", `{"Type": "HeU", "Config": {"Gain": 2}}`, HeU},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var init InitWFn
			if err := json.Unmarshal([]byte(test.json), &init); err != nil {
				t.Fatal(err)
			}
			if init.Type != test.want || init.Config.Type() != test.want {
				t.Errorf("want(%v) have(%v, %v)", test.want, init.Type,
					init.Config.Type())
			}
			if init.InitWFn() == nil {
				t.Error("nil Gorgonia InitWFn")
			}
		})
	}
}

func TestUnmarshalJSONInvalid(t *testing.T) {
	for _, data := range []string{
		`{"Config": {"Value": 1}}`,
		`{"Type": "Unknown", "Config": {}}`,
		`not json`,
		`{"Type": "Gaussian", "Config": {"Mean": 0, "StdDev": 0}}`,
	} {
		var init InitWFn
		if err := json.Unmarshal([]byte(data), &init); err == nil {
			t.Errorf("expected error unmarshalling %q", data)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	init, err := NewGaussian(0, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(init)
	if err != nil {
		t.Fatal(err)
	}

	var decoded InitWFn
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	config, ok := decoded.Config.(GaussianConfig)
	if !ok || config.Mean != 0 || config.StdDev != 0.1 {
		t.Errorf("want(%v) have(%v)", init.Config, decoded.Config)
	}
}

func TestConstantValues(t *testing.T) {
	init, err := NewConstant(0.1)
	if err != nil {
		t.Fatal(err)
	}
	values, ok := init.InitWFn()(tensor.Float64, 2, 3).([]float64)
	if !ok {
		t.Fatal("expected []float64 values")
	}
	if len(values) != 6 {
		t.Fatalf("want(6) values have(%v)", len(values))
	}
	for _, v := range values {
		if v != 0.1 {
			t.Errorf("want(0.1) have(%v)", v)
		}
	}
}

func TestNewGaussian(t *testing.T) {
	tests := []struct {
		name         string
		mean, stddev float64
		valid        bool
	}{
		{"default", 0, 0.1, true},
		{"shifted", 1, 2, true},
		{"zeroStdDev", 0, 0, false},
		{"negativeStdDev", 0, -0.1, false},
		{"nanMean", math.NaN(), 0.1, false},
		{"infStdDev", 0, math.Inf(1), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			init, err := NewGaussian(test.mean, test.stddev)
			if (err == nil) != test.valid {
				t.Fatalf("want valid(%v) have error(%v)", test.valid, err)
			}
			if !test.valid {
				return
			}
			if init.Type != Gaussian {
				t.Errorf("want(%v) type have(%v)", Gaussian, init.Type)
			}
			values, ok := init.InitWFn()(tensor.Float64, 50, 40).([]float64)
			if !ok || len(values) != 2000 {
				t.Fatalf("want(2000) float64 values have(%T)", values)
			}

			// The sample mean of 2000 draws lies well within 5 standard
			// errors of the mean
			var sum float64
			for _, v := range values {
				sum += v
			}
			stderr := test.stddev / math.Sqrt(float64(len(values)))
			if mean := sum / float64(len(values)); math.Abs(
				mean-test.mean) > 5*stderr {
				t.Errorf("sample mean %v too far from %v", mean, test.mean)
			}
		})
	}
}
