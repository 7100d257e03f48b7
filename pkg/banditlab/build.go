package banditlab

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"banditlab/internal/agent"
	"banditlab/internal/bandit"
	"banditlab/internal/dist"
	"banditlab/internal/metrics"
)

// Each trial owns a block of random streams so that trials are reproducible
// on their own, whatever order they run in.
const trialStreamStride = 1 << 16

const (
	streamHighReward = iota
	streamMediumReward
	streamLowReward
	streamPhaseDuration
	streamAgents
)

type builder struct {
	exp     Experiment
	logger  *zap.Logger
	metrics *metrics.Collector
}

func (b builder) source(trial, offset int) rand.Source {
	return dist.NewSource(b.exp.Seed, uint64(trial)*trialStreamStride+uint64(offset))
}

func (b builder) trial(trial int) (*bandit.Bandit, []agent.Agent, error) {
	env, err := b.bandit(trial)
	if err != nil {
		return nil, nil, err
	}
	agents, err := b.agents(trial, env.NumArms())
	if err != nil {
		return nil, nil, err
	}
	return env, agents, nil
}

func (b builder) bandit(trial int) (*bandit.Bandit, error) {
	spec := b.exp.Bandit
	build := func(s *dist.Spec, offset int) (dist.Distribution, error) {
		if s == nil {
			return nil, nil
		}
		return s.Build(b.source(trial, offset))
	}
	high, err := build(spec.HighReward, streamHighReward)
	if err != nil {
		return nil, fmt.Errorf("high reward: %w", err)
	}
	medium, err := build(spec.MediumReward, streamMediumReward)
	if err != nil {
		return nil, fmt.Errorf("medium reward: %w", err)
	}
	low, err := build(spec.LowReward, streamLowReward)
	if err != nil {
		return nil, fmt.Errorf("low reward: %w", err)
	}
	partition := bandit.Partition{
		NumArms:         spec.NumArms,
		NumHighReward:   spec.NumHighReward,
		NumMediumReward: spec.NumMediumReward,
		NumLowReward:    spec.NumLowReward,
	}

	if strings.ToLower(spec.Kind) == BanditStationary {
		return bandit.NewStationary(bandit.StationaryConfig{
			Partition:    partition,
			HighReward:   high,
			MediumReward: medium,
			LowReward:    low,
		})
	}

	phase, err := build(spec.PhaseDuration, streamPhaseDuration)
	if err != nil {
		return nil, fmt.Errorf("phase duration: %w", err)
	}
	initial, err := parsePhase(spec.InitialPhase)
	if err != nil {
		return nil, err
	}
	return bandit.NewHighLow(bandit.HighLowConfig{
		Partition:     partition,
		HighReward:    high,
		MediumReward:  medium,
		LowReward:     low,
		PhaseDuration: phase,
		InitialPhase:  initial,
	})
}

func (b builder) agents(trial, numArms int) ([]agent.Agent, error) {
	out := make([]agent.Agent, 0, len(b.exp.Agents))
	for i, spec := range b.exp.Agents {
		src := b.source(trial, streamAgents+i)
		opts := []agent.Option{agent.WithLogger(b.logger)}
		if b.metrics != nil {
			name := spec.Name
			opts = append(opts, agent.WithResetHook(func(int, float64) {
				b.metrics.RecordReset(name)
			}))
		}

		var (
			a   agent.Agent
			err error
		)
		switch strings.ToLower(spec.Kind) {
		case agent.KindThompson:
			a, err = agent.NewThompsonSampling(spec.Name, numArms, src, opts...)
		case agent.KindSlidingWindow:
			a, err = agent.NewSlidingWindow(spec.Name, numArms, spec.WinLen, src, opts...)
		case agent.KindResetWindow:
			threshold := 0.0
			if spec.TailMassThreshold != nil {
				threshold = *spec.TailMassThreshold
			}
			a, err = agent.NewResetWindow(spec.Name, numArms, spec.WinLen, threshold, src, opts...)
		case agent.KindRandom:
			a, err = agent.NewRandom(spec.Name, numArms, src, opts...)
		default:
			err = fmt.Errorf("%w: unsupported agent kind: %s", ErrInvalidExperiment, spec.Kind)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func parsePhase(name string) (bandit.PhaseState, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "high":
		return bandit.PhaseHigh, nil
	case "low":
		return bandit.PhaseLow, nil
	default:
		return bandit.PhaseHigh, fmt.Errorf("%w: unsupported initial phase: %s", ErrInvalidExperiment, name)
	}
}
