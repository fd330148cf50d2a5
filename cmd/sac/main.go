// Command sac trains a Soft Actor-Critic agent on a synthetic
// continuous control task. The agent is configured from a JSON or
// YAML file, checkpointed periodically, and its summaries are stored
// in a SQLite database.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/sac/agent/nonlinear/continuous/sac"
	"github.com/samuelfneumann/sac/checkpointer"
	"github.com/samuelfneumann/sac/observation"
	"github.com/samuelfneumann/sac/recorder"
	"github.com/samuelfneumann/sac/solver"
)

// options are the command line options of a run
type options struct {
	config   string
	seed     uint64
	episodes int
	steps    int
	every    int
	db       string
	naming   string
	solver   string
}

func main() {
	var opts options
	flag.StringVar(&opts.config, "config", "", "path to a JSON or YAML "+
		"agent configuration")
	flag.Uint64Var(&opts.seed, "seed", 1, "random seed")
	flag.IntVar(&opts.episodes, "episodes", 100, "number of episodes "+
		"to run")
	flag.IntVar(&opts.steps, "steps", 200, "maximum steps per episode")
	flag.IntVar(&opts.every, "checkpoint", 1000, "checkpoint every this "+
		"many global steps")
	flag.StringVar(&opts.db, "db", "", "SQLite database to record "+
		"summaries in, defaults to <LogDir>/sac.db")
	flag.StringVar(&opts.naming, "naming", "enumerate", "checkpoint "+
		"file naming, one of enumerate, time or fixed")
	flag.StringVar(&opts.solver, "solver", "", "overrides the "+
		"configured solver, one of adam or vanilla")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

// checkpointNames returns the function naming checkpoint files in dir
func checkpointNames(naming, dir string, start int) (func() string,
	error) {
	base := filepath.Join(dir, "sac")
	switch naming {
	case "enumerate":
		return checkpointer.FilenameEnumerator(start, base, ".ckpt"), nil
	case "time":
		return checkpointer.FileTimer(base, ".ckpt"), nil
	case "fixed":
		return checkpointer.Fixed(base + ".ckpt"), nil
	}
	return nil, fmt.Errorf("checkpointNames: unknown naming %q", naming)
}

// newSolver returns the solver named by name, or nil if name is empty
func newSolver(name string, learnRate float64) (*solver.Solver, error) {
	switch name {
	case "":
		return nil, nil
	case "adam":
		return solver.NewDefaultAdam(learnRate)
	case "vanilla":
		return solver.NewVanilla(learnRate, 0)
	}
	return nil, fmt.Errorf("newSolver: unknown solver %q", name)
}

func run(opts options) error {
	c := sac.DefaultConfig(4, 2)
	if opts.config != "" {
		var err error
		if c, err = sac.LoadConfig(opts.config); err != nil {
			return err
		}
	}
	sol, err := newSolver(opts.solver, c.LearningRate)
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	if sol != nil {
		c.Solver = sol
	}

	// Telemetry
	db := opts.db
	if db == "" {
		db = filepath.Join(c.LogDir, "sac.db")
	}
	if err := os.MkdirAll(filepath.Dir(db), 0o755); err != nil {
		return fmt.Errorf("run: %v", err)
	}
	name := "default"
	if opts.config != "" {
		name = filepath.Base(opts.config)
	}
	store, err := recorder.NewSQLite(db, name)
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	logger := recorder.NewLogger(os.Stdout)
	rec := recorder.NewMulti(store, logger)

	var enc observation.Encoder
	if c.VisualSources > 0 {
		if enc, err = observation.NewMeanPool(c.VisualSources,
			c.VisualResolution); err != nil {
			rec.Close()
			return fmt.Errorf("run: %v", err)
		}
	}

	agent, err := sac.New(c, opts.seed, rec, enc)
	if err != nil {
		rec.Close()
		return fmt.Errorf("run: %v", err)
	}
	defer agent.Close()
	logger.Printf("run %v recording to %v", store.RunID(), db)

	names, err := checkpointNames(opts.naming, c.CheckpointDir,
		agent.GlobalStep())
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	ckpt, err := checkpointer.NewNStep(opts.every, agent, names)
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}

	obsLen := c.StateDim + c.VisualSources*c.VisualResolution.Size()
	env := newTask(obsLen, c.ActionDim, opts.steps, opts.seed)

	for ep := agent.Episode(); ep < opts.episodes; ep++ {
		step := env.Reset()
		if err := agent.ObserveFirst(step); err != nil {
			return fmt.Errorf("run: %v", err)
		}

		episodeReturn := 0.0
		for !step.Last() {
			action, err := agent.SelectAction(step)
			if err != nil {
				return fmt.Errorf("run: %v", err)
			}
			step = env.Step(action)
			episodeReturn += step.Reward

			if err := agent.Observe(action, step); err != nil {
				return fmt.Errorf("run: %v", err)
			}
			if err := agent.Step(); err != nil {
				return fmt.Errorf("run: %v", err)
			}

			if _, err := ckpt.Checkpoint(agent.GlobalStep()); err != nil {
				return fmt.Errorf("run: %v", err)
			}
		}
		agent.EndEpisode()
		logger.Printf("episode %v return %.3f alpha %.4f", ep,
			episodeReturn, agent.Alpha())
	}

	path, err := agent.Export()
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	logger.Printf("exported policy to %v", path)

	losses, err := store.Series(recorder.CriticLoss)
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	if len(losses) > 0 {
		last := losses[len(losses)-1]
		logger.Printf("run %v recorded %v updates, final critic loss %.4f",
			store.RunID(), len(losses), last.Value)
	}
	return nil
}
