package main

import (
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/sac/agent/nonlinear/continuous/sac"
	"github.com/samuelfneumann/sac/recorder"
	"github.com/samuelfneumann/sac/solver"
	"gonum.org/v1/gonum/mat"
)

func TestTask(t *testing.T) {
	env := newTask(3, 2, 5, 1)

	step := env.Reset()
	if !step.First() {
		t.Fatal("reset should return a first timestep")
	}

	for i := 1; i <= 5; i++ {
		target := env.target(step.Observation)
		step = env.Step(mat.NewVecDense(2, target))
		if step.Reward != 0 {
			t.Errorf("want(0) reward for optimal action have(%v)", step.Reward)
		}
		if step.Last() != (i == 5) {
			t.Errorf("step %v: want last(%v) have(%v)", i, i == 5, step.Last())
		}
	}

	step = env.Reset()
	step = env.Step(mat.NewVecDense(2, []float64{5, 5}))
	if step.Reward >= 0 {
		t.Errorf("want negative reward have(%v)", step.Reward)
	}
}

func testConfig(t *testing.T, dir string) sac.Config {
	t.Helper()
	c := sac.DefaultConfig(3, 1)
	c.BatchSize = 4
	c.BufferSize = 50
	c.CriticLayers = []int{8}
	c.ValueLayers = []int{8}
	c.ActorRootLayers = []int{8}
	c.ActorLeafLayers = []int{4}
	c.CheckpointDir = filepath.Join(dir, "models")
	c.LogDir = filepath.Join(dir, "logs")
	c.ExportDir = filepath.Join(dir, "export")
	c.Logger2File = true
	return c
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir)

	path := filepath.Join(dir, "config.yaml")
	if err := sac.SaveConfig(c, path); err != nil {
		t.Fatal(err)
	}
	opts := options{
		config:   path,
		seed:     1,
		episodes: 2,
		steps:    10,
		every:    5,
		naming:   "enumerate",
	}
	if err := run(opts); err != nil {
		t.Fatal(err)
	}

	matches, err := filepath.Glob(filepath.Join(c.CheckpointDir,
		sac.CheckpointPattern))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Error("no checkpoints written")
	}

	// Running again restores the agent from its last checkpoint and
	// skips the episodes already run
	opts.episodes = 3
	if err := run(opts); err != nil {
		t.Fatal(err)
	}

	store, err := recorder.NewSQLite(filepath.Join(c.LogDir, "sac.db"),
		"check")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if points, err := store.Series(recorder.CriticLoss); err != nil {
		t.Error(err)
	} else if len(points) != 0 {
		t.Errorf("new run should have no points have(%v)", len(points))
	}
}

func TestRunNamingAndSolver(t *testing.T) {
	tests := []struct {
		naming string
		solver string
		single bool
	}{
		{"fixed", "vanilla", true},
		{"time", "adam", false},
	}

	for _, test := range tests {
		t.Run(test.naming, func(t *testing.T) {
			dir := t.TempDir()
			c := testConfig(t, dir)
			path := filepath.Join(dir, "config.json")
			if err := sac.SaveConfig(c, path); err != nil {
				t.Fatal(err)
			}

			opts := options{
				config:   path,
				seed:     2,
				episodes: 2,
				steps:    10,
				every:    5,
				naming:   test.naming,
				solver:   test.solver,
			}
			if err := run(opts); err != nil {
				t.Fatal(err)
			}

			matches, err := filepath.Glob(filepath.Join(c.CheckpointDir,
				sac.CheckpointPattern))
			if err != nil {
				t.Fatal(err)
			}
			// Fixed names overwrite a single file, other names keep
			// one file per checkpoint
			if test.single && len(matches) != 1 {
				t.Errorf("want(1) checkpoint have(%v)", len(matches))
			}
			if !test.single && len(matches) < 2 {
				t.Errorf("want(>1) checkpoints have(%v)", len(matches))
			}
		})
	}
}

func TestInvalidOptions(t *testing.T) {
	if _, err := checkpointNames("random", t.TempDir(), 0); err == nil {
		t.Error("expected error for unknown naming")
	}
	if _, err := newSolver("rmsprop", 1e-3); err == nil {
		t.Error("expected error for unknown solver")
	}

	sol, err := newSolver("vanilla", 1e-3)
	if err != nil {
		t.Fatal(err)
	}
	if sol.Type != solver.Vanilla {
		t.Errorf("want(%v) solver have(%v)", solver.Vanilla, sol.Type)
	}
	if sol, err := newSolver("", 1e-3); sol != nil || err != nil {
		t.Errorf("empty solver name: want(nil, nil) have(%v, %v)", sol, err)
	}
}
