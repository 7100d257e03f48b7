package main

import (
	"flag"

	"banditlab/pkg/banditlab"
)

// overrideFlags replace experiment file values, but only when given on the
// command line.
type overrideFlags struct {
	seed    *uint64
	trials  *int
	rounds  *int
	workers *int
	mode    *string
}

func registerOverrideFlags(fs *flag.FlagSet) overrideFlags {
	return overrideFlags{
		seed:    fs.Uint64("seed", 0, "override experiment seed"),
		trials:  fs.Int("trials", 0, "override number of trials"),
		rounds:  fs.Int("rounds", 0, "override number of rounds"),
		workers: fs.Int("workers", 0, "override worker count for independent trials"),
		mode:    fs.String("mode", "", "override trial mode: shared|independent"),
	}
}

func loadExperiment(path string, fs *flag.FlagSet, o overrideFlags) (banditlab.Experiment, error) {
	exp, err := banditlab.LoadExperiment(path)
	if err != nil {
		return banditlab.Experiment{}, err
	}
	applyOverrides(&exp, fs, o)
	if err := exp.Validate(); err != nil {
		return banditlab.Experiment{}, err
	}
	return exp, nil
}

func applyOverrides(exp *banditlab.Experiment, fs *flag.FlagSet, o overrideFlags) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			exp.Seed = *o.seed
		case "trials":
			exp.Trials = *o.trials
		case "rounds":
			exp.Rounds = *o.rounds
		case "workers":
			exp.Workers = *o.workers
		case "mode":
			exp.Mode = *o.mode
		}
	})
}
