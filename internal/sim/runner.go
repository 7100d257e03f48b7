// Package sim drives agents against a bandit: one trial plays every agent once
// per round and then draws the oracle reward, and runs fold trials into means.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"banditlab/internal/agent"
	"banditlab/internal/bandit"
	"banditlab/internal/dist"
	"banditlab/internal/logging"
	"banditlab/internal/metrics"
	"banditlab/internal/model"
	"banditlab/internal/stats"
)

var (
	ErrInvalidConfig  = errors.New("invalid simulation config")
	ErrDuplicateAgent = errors.New("duplicate agent")
	ErrSharedInstance = errors.New("instance shared between independent trials")
)

type Config struct {
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

type Runner struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		logger:  logging.OrNop(cfg.Logger).With(zap.String("component", "sim")),
		metrics: cfg.Metrics,
	}
}

// TrialFactory builds the bandit and agents for one independent trial.
type TrialFactory func(trial int) (*bandit.Bandit, []agent.Agent, error)

// RunTrial plays rounds rounds. Within a round every agent, in slice order,
// chooses an arm, pulls it and observes the reward; the oracle draws last.
func (r *Runner) RunTrial(ctx context.Context, b *bandit.Bandit, agents []agent.Agent, rounds int) (*stats.SimResult, error) {
	refs, err := checkLineup(b, agents, rounds)
	if err != nil {
		return nil, err
	}
	result, err := stats.NewSimResult(refs)
	if err != nil {
		return nil, err
	}

	for round := 0; round < rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, ag := range agents {
			action, err := ag.NextAction()
			if err != nil {
				return nil, fmt.Errorf("round %d agent %s next action: %w", round, refs[i].Name, err)
			}
			reward, err := b.Pull(action)
			if err != nil {
				return nil, fmt.Errorf("round %d agent %s: %w", round, refs[i].Name, err)
			}
			if err := result.AppendReward(refs[i].Handle, reward); err != nil {
				return nil, err
			}
			if err := ag.Observe(action, reward); err != nil {
				return nil, fmt.Errorf("round %d agent %s observe: %w", round, refs[i].Name, err)
			}
			if r.metrics != nil {
				r.metrics.RecordPull(refs[i].Name, action)
			}
			r.logger.Debug("pull",
				zap.Int("round", round),
				zap.String("agent", refs[i].Name),
				zap.Int("arm", action),
				zap.Float64("reward", reward),
			)
		}
		oracle := b.PullHighReward()
		result.AppendHighReward(oracle)
		r.logger.Debug("oracle", zap.Int("round", round), zap.Float64("reward", oracle))
	}
	return result, nil
}

// Run repeats RunTrial on the same instances, so belief state carries over
// from one trial to the next. Trials run strictly in order.
func (r *Runner) Run(ctx context.Context, b *bandit.Bandit, agents []agent.Agent, rounds, trials int) (*stats.MeanSimResult, error) {
	if trials <= 0 {
		return nil, fmt.Errorf("%w: trials must be > 0, got %d", ErrInvalidConfig, trials)
	}
	agg := stats.NewAggregator()
	for trial := 0; trial < trials; trial++ {
		result, err := r.runTimedTrial(ctx, trial, b, agents, rounds)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", trial, err)
		}
		if err := agg.Add(result); err != nil {
			return nil, fmt.Errorf("trial %d: %w", trial, err)
		}
	}
	return r.finish(agg)
}

// RunIndependent builds fresh instances per trial through factory and plays
// up to workers trials concurrently. Results are folded in trial order, so the
// outcome does not depend on scheduling. A factory that hands the same agent,
// bandit, arm, distribution or random source to two trials is rejected with
// ErrSharedInstance.
func (r *Runner) RunIndependent(ctx context.Context, factory TrialFactory, rounds, trials, workers int) (*stats.MeanSimResult, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: trial factory is required", ErrInvalidConfig)
	}
	if trials <= 0 {
		return nil, fmt.Errorf("%w: trials must be > 0, got %d", ErrInvalidConfig, trials)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu    sync.Mutex
		owner = make(map[any]int)
	)
	build := func(trial int) (*bandit.Bandit, []agent.Agent, error) {
		mu.Lock()
		defer mu.Unlock()
		b, agents, err := factory(trial)
		if err != nil {
			return nil, nil, err
		}
		if err := claimInstances(owner, trial, b, agents); err != nil {
			return nil, nil, err
		}
		return b, agents, nil
	}

	results := make([]*stats.SimResult, trials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for trial := 0; trial < trials; trial++ {
		g.Go(func() error {
			b, agents, err := build(trial)
			if err != nil {
				return fmt.Errorf("trial %d: %w", trial, err)
			}
			result, err := r.runTimedTrial(gctx, trial, b, agents, rounds)
			if err != nil {
				return fmt.Errorf("trial %d: %w", trial, err)
			}
			results[trial] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	agg := stats.NewAggregator()
	for trial, result := range results {
		if err := agg.Add(result); err != nil {
			return nil, fmt.Errorf("trial %d: %w", trial, err)
		}
	}
	return r.finish(agg)
}

func (r *Runner) runTimedTrial(ctx context.Context, trial int, b *bandit.Bandit, agents []agent.Agent, rounds int) (*stats.SimResult, error) {
	r.logger.Info("trial started", zap.Int("trial", trial), zap.Int("rounds", rounds), zap.Int("agents", len(agents)))
	start := time.Now()
	result, err := r.RunTrial(ctx, b, agents, rounds)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordTrial(elapsed)
	}
	r.logger.Info("trial finished", zap.Int("trial", trial), zap.Duration("elapsed", elapsed))
	return result, nil
}

func (r *Runner) finish(agg *stats.Aggregator) (*stats.MeanSimResult, error) {
	mean, err := agg.Result()
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		for _, series := range mean.Agents {
			r.metrics.RecordOutcome(series.Agent.Name, stat.Mean(series.MeanRewards, nil), stats.FinalRegret(series))
		}
	}
	return mean, nil
}

func checkLineup(b *bandit.Bandit, agents []agent.Agent, rounds int) ([]model.AgentRef, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: bandit is required", ErrInvalidConfig)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: at least one agent is required", ErrInvalidConfig)
	}
	if rounds <= 0 {
		return nil, fmt.Errorf("%w: rounds must be > 0, got %d", ErrInvalidConfig, rounds)
	}
	refs := make([]model.AgentRef, len(agents))
	seen := make(map[model.AgentHandle]string, len(agents))
	for i, ag := range agents {
		if ag == nil {
			return nil, fmt.Errorf("%w: agent %d is nil", ErrInvalidConfig, i)
		}
		ref := ag.Ref()
		if _, ok := seen[ref.Handle]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, ref.Name)
		}
		if ag.NumArms() != b.NumArms() {
			return nil, fmt.Errorf("%w: agent %s expects %d arms, bandit has %d", ErrInvalidConfig, ref.Name, ag.NumArms(), b.NumArms())
		}
		seen[ref.Handle] = ref.Name
		refs[i] = ref
	}
	return refs, nil
}

// claimInstances records which trial owns each pointer-backed instance: the
// bandit, its arms, every distribution they sample, the agents, and the random
// sources behind all of them. The map keeps every claimed instance reachable
// until the run ends, so a freed instance can never be mistaken for a reused one.
func claimInstances(owner map[any]int, trial int, b *bandit.Bandit, agents []agent.Agent) error {
	claim := func(kind string, v any) error {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return nil
		}
		if prev, ok := owner[v]; ok && prev != trial {
			return fmt.Errorf("%w: %s already used by trial %d", ErrSharedInstance, kind, prev)
		}
		owner[v] = trial
		return nil
	}
	claimDist := func(kind string, d dist.Distribution) error {
		if d == nil {
			return nil
		}
		if err := claim(kind, d); err != nil {
			return err
		}
		return claim(kind+" source", d.Source())
	}

	if b == nil {
		return nil
	}
	if err := claim("bandit", b); err != nil {
		return err
	}
	if err := claimDist("oracle distribution", b.HighReward()); err != nil {
		return err
	}
	for armID := 0; armID < b.NumArms(); armID++ {
		arm, err := b.Arm(armID)
		if err != nil {
			return err
		}
		if err := claim("arm "+arm.Name(), arm); err != nil {
			return err
		}
		for _, d := range arm.Distributions() {
			if err := claimDist("arm "+arm.Name()+" distribution", d); err != nil {
				return err
			}
		}
	}
	for _, ag := range agents {
		if ag == nil {
			continue
		}
		name := ag.Ref().Name
		if err := claim("agent "+name, ag); err != nil {
			return err
		}
		if sourced, ok := ag.(interface{ Source() rand.Source }); ok {
			if err := claim("agent "+name+" source", sourced.Source()); err != nil {
				return err
			}
		}
	}
	return nil
}
