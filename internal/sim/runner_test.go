package sim

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"banditlab/internal/agent"
	"banditlab/internal/bandit"
	"banditlab/internal/dist"
	"banditlab/internal/metrics"
	"banditlab/internal/model"
	"banditlab/internal/stats"
)

// scriptedAgent plays a fixed arm sequence and logs every call.
type scriptedAgent struct {
	ref     model.AgentRef
	numArms int
	actions []int
	next    int
	calls   *[]string
}

func newScripted(name string, numArms int, calls *[]string, actions ...int) *scriptedAgent {
	return &scriptedAgent{
		ref:     model.AgentRef{Handle: model.NewAgentHandle(name), Name: name, Kind: "scripted"},
		numArms: numArms,
		actions: actions,
		calls:   calls,
	}
}

func (a *scriptedAgent) Ref() model.AgentRef { return a.ref }
func (a *scriptedAgent) NumArms() int        { return a.numArms }
func (a *scriptedAgent) String() string      { return a.ref.Name }

func (a *scriptedAgent) NextAction() (int, error) {
	action := a.actions[a.next%len(a.actions)]
	a.next++
	*a.calls = append(*a.calls, fmt.Sprintf("%s:next:%d", a.ref.Name, action))
	return action, nil
}

func (a *scriptedAgent) Observe(armID int, reward float64) error {
	*a.calls = append(*a.calls, fmt.Sprintf("%s:observe:%d:%g", a.ref.Name, armID, reward))
	return nil
}

func constantBandit(t *testing.T, high float64, rewards ...float64) *bandit.Bandit {
	t.Helper()
	arms := make([]bandit.Arm, 0, len(rewards))
	for i, r := range rewards {
		c, err := dist.NewConstant(r, dist.NewSource(1, uint64(i)))
		require.NoError(t, err)
		arm, err := bandit.NewStationaryArm(fmt.Sprintf("arm-%d", i), c)
		require.NoError(t, err)
		arms = append(arms, arm)
	}
	oracle, err := dist.NewConstant(high, dist.NewSource(1, 100))
	require.NoError(t, err)
	b, err := bandit.New(arms, oracle)
	require.NoError(t, err)
	return b
}

func normalBandit(t *testing.T, seed uint64) *bandit.Bandit {
	t.Helper()
	good, err := dist.NewNormal(10, 1, dist.NewSource(seed, 0))
	require.NoError(t, err)
	bad, err := dist.NewNormal(1, 1, dist.NewSource(seed, 1))
	require.NoError(t, err)
	oracle, err := dist.NewNormal(10, 1, dist.NewSource(seed, 2))
	require.NoError(t, err)

	arm0, err := bandit.NewStationaryArm("arm-0", good)
	require.NoError(t, err)
	arm1, err := bandit.NewStationaryArm("arm-1", bad)
	require.NoError(t, err)
	b, err := bandit.New([]bandit.Arm{arm0, arm1}, oracle)
	require.NoError(t, err)
	return b
}

func TestRunTrialCallOrder(t *testing.T) {
	var calls []string
	b := constantBandit(t, 5, 1, 2)
	first := newScripted("A", 2, &calls, 0, 1)
	second := newScripted("B", 2, &calls, 1)

	result, err := NewRunner(Config{}).RunTrial(context.Background(), b, []agent.Agent{first, second}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"A:next:0", "A:observe:0:1",
		"B:next:1", "B:observe:1:2",
		"A:next:1", "A:observe:1:2",
		"B:next:1", "B:observe:1:2",
	}, calls)

	rewardsA, err := result.Rewards(first.Ref().Handle)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, rewardsA)
	assert.Equal(t, []float64{5, 5}, result.HighRewards())
	assert.Equal(t, 2, result.Rounds())
}

func TestRunSharesInstancesAcrossTrials(t *testing.T) {
	b := constantBandit(t, 3, 3, 0)
	ts, err := agent.NewThompsonSampling("TS", 2, dist.NewSource(4, 0))
	require.NoError(t, err)

	mean, err := NewRunner(Config{Logger: zap.NewNop()}).Run(context.Background(), b, []agent.Agent{ts}, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, mean.Trials)
	assert.Equal(t, 10, mean.Rounds)

	pulls := 0
	for armID := 0; armID < 2; armID++ {
		n, err := ts.Estimator().Count(armID)
		require.NoError(t, err)
		pulls += n
	}
	assert.Equal(t, 30, pulls, "belief state carries over between trials")
}

func TestThompsonSamplingBeatsRandom(t *testing.T) {
	b := normalBandit(t, 2024)
	ts, err := agent.NewThompsonSampling("TS", 2, dist.NewSource(2024, 10))
	require.NoError(t, err)
	random, err := agent.NewRandom("Random", 2, dist.NewSource(2024, 11))
	require.NoError(t, err)

	mean, err := NewRunner(Config{}).Run(context.Background(), b, []agent.Agent{ts, random}, 200, 5)
	require.NoError(t, err)

	tsSeries, err := mean.Agent(ts.Ref().Handle)
	require.NoError(t, err)
	randomSeries, err := mean.Agent(random.Ref().Handle)
	require.NoError(t, err)

	tsRegret := stats.FinalRegret(tsSeries)
	randomRegret := stats.FinalRegret(randomSeries)
	assert.Greater(t, randomRegret, 500.0)
	assert.Less(t, tsRegret, 0.1*randomRegret)
}

func independentFactory(seed uint64) TrialFactory {
	return func(trial int) (*bandit.Bandit, []agent.Agent, error) {
		stream := uint64(trial) * 16
		good, err := dist.NewNormal(10, 1, dist.NewSource(seed, stream))
		if err != nil {
			return nil, nil, err
		}
		bad, err := dist.NewNormal(1, 1, dist.NewSource(seed, stream+1))
		if err != nil {
			return nil, nil, err
		}
		oracle, err := dist.NewNormal(10, 1, dist.NewSource(seed, stream+2))
		if err != nil {
			return nil, nil, err
		}
		arm0, err := bandit.NewStationaryArm("arm-0", good)
		if err != nil {
			return nil, nil, err
		}
		arm1, err := bandit.NewStationaryArm("arm-1", bad)
		if err != nil {
			return nil, nil, err
		}
		b, err := bandit.New([]bandit.Arm{arm0, arm1}, oracle)
		if err != nil {
			return nil, nil, err
		}
		ts, err := agent.NewSlidingWindow("TS-SlidingWin", 2, 20, dist.NewSource(seed, stream+3))
		if err != nil {
			return nil, nil, err
		}
		return b, []agent.Agent{ts}, nil
	}
}

func TestRunIndependentIsDeterministicAcrossWorkerCounts(t *testing.T) {
	runner := NewRunner(Config{})

	serial, err := runner.RunIndependent(context.Background(), independentFactory(9), 50, 6, 1)
	require.NoError(t, err)
	parallel, err := runner.RunIndependent(context.Background(), independentFactory(9), 50, 6, 4)
	require.NoError(t, err)

	assert.Equal(t, 6, parallel.Trials)
	assert.Equal(t, serial.MeanHighRewards, parallel.MeanHighRewards)
	assert.Equal(t, serial.Agents, parallel.Agents)
}

func TestRunIndependentRejectsSharedInstances(t *testing.T) {
	b := normalBandit(t, 1)
	ts, err := agent.NewThompsonSampling("TS", 2, dist.NewSource(1, 5))
	require.NoError(t, err)

	shared := func(int) (*bandit.Bandit, []agent.Agent, error) {
		return b, []agent.Agent{ts}, nil
	}
	_, err = NewRunner(Config{}).RunIndependent(context.Background(), shared, 5, 2, 2)
	assert.ErrorIs(t, err, ErrSharedInstance)

	bandits := []*bandit.Bandit{normalBandit(t, 2), normalBandit(t, 3)}
	sharedAgent := func(trial int) (*bandit.Bandit, []agent.Agent, error) {
		return bandits[trial], []agent.Agent{ts}, nil
	}
	_, err = NewRunner(Config{}).RunIndependent(context.Background(), sharedAgent, 5, 2, 1)
	assert.ErrorIs(t, err, ErrSharedInstance)
}

func TestRunIndependentRejectsSharedDistributions(t *testing.T) {
	shared, err := dist.NewNormal(10, 1, dist.NewSource(3, 0))
	require.NoError(t, err)
	sharedSource := dist.NewSource(3, 1)

	freshAgent := func(trial int) (agent.Agent, error) {
		return agent.NewThompsonSampling("TS", 1, dist.NewSource(3, uint64(100+trial)))
	}
	freshOracle := func(trial int) (dist.Distribution, error) {
		return dist.NewNormal(10, 1, dist.NewSource(3, uint64(200+trial)))
	}

	cases := map[string]TrialFactory{
		"arm distribution": func(trial int) (*bandit.Bandit, []agent.Agent, error) {
			arm, err := bandit.NewStationaryArm("arm-0", shared)
			if err != nil {
				return nil, nil, err
			}
			oracle, err := freshOracle(trial)
			if err != nil {
				return nil, nil, err
			}
			b, err := bandit.New([]bandit.Arm{arm}, oracle)
			if err != nil {
				return nil, nil, err
			}
			ts, err := freshAgent(trial)
			return b, []agent.Agent{ts}, err
		},
		"oracle distribution": func(trial int) (*bandit.Bandit, []agent.Agent, error) {
			reward, err := dist.NewNormal(5, 1, dist.NewSource(3, uint64(300+trial)))
			if err != nil {
				return nil, nil, err
			}
			arm, err := bandit.NewStationaryArm("arm-0", reward)
			if err != nil {
				return nil, nil, err
			}
			b, err := bandit.New([]bandit.Arm{arm}, shared)
			if err != nil {
				return nil, nil, err
			}
			ts, err := freshAgent(trial)
			return b, []agent.Agent{ts}, err
		},
		"distribution source": func(trial int) (*bandit.Bandit, []agent.Agent, error) {
			reward, err := dist.NewNormal(5, 1, sharedSource)
			if err != nil {
				return nil, nil, err
			}
			arm, err := bandit.NewStationaryArm("arm-0", reward)
			if err != nil {
				return nil, nil, err
			}
			oracle, err := freshOracle(trial)
			if err != nil {
				return nil, nil, err
			}
			b, err := bandit.New([]bandit.Arm{arm}, oracle)
			if err != nil {
				return nil, nil, err
			}
			ts, err := freshAgent(trial)
			return b, []agent.Agent{ts}, err
		},
		"agent source": func(trial int) (*bandit.Bandit, []agent.Agent, error) {
			reward, err := dist.NewNormal(5, 1, dist.NewSource(3, uint64(300+trial)))
			if err != nil {
				return nil, nil, err
			}
			arm, err := bandit.NewStationaryArm("arm-0", reward)
			if err != nil {
				return nil, nil, err
			}
			oracle, err := freshOracle(trial)
			if err != nil {
				return nil, nil, err
			}
			b, err := bandit.New([]bandit.Arm{arm}, oracle)
			if err != nil {
				return nil, nil, err
			}
			ts, err := agent.NewThompsonSampling("TS", 1, sharedSource)
			return b, []agent.Agent{ts}, err
		},
	}
	for name, factory := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRunner(Config{}).RunIndependent(context.Background(), factory, 20, 4, 2)
			assert.ErrorIs(t, err, ErrSharedInstance)
		})
	}
}

func TestRunIndependentAllowsSourceReuseWithinTrial(t *testing.T) {
	factory := func(trial int) (*bandit.Bandit, []agent.Agent, error) {
		src := dist.NewSource(4, uint64(trial))
		reward, err := dist.NewNormal(5, 1, src)
		if err != nil {
			return nil, nil, err
		}
		arm0, err := bandit.NewStationaryArm("arm-0", reward)
		if err != nil {
			return nil, nil, err
		}
		arm1, err := bandit.NewStationaryArm("arm-1", reward)
		if err != nil {
			return nil, nil, err
		}
		b, err := bandit.New([]bandit.Arm{arm0, arm1}, reward)
		if err != nil {
			return nil, nil, err
		}
		ts, err := agent.NewThompsonSampling("TS", 2, dist.NewSource(4, uint64(100+trial)))
		return b, []agent.Agent{ts}, err
	}
	result, err := NewRunner(Config{}).RunIndependent(context.Background(), factory, 10, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Trials)
}

func TestRunTrialRejectsBadLineup(t *testing.T) {
	var calls []string
	b := constantBandit(t, 1, 1, 1)
	runner := NewRunner(Config{})
	ctx := context.Background()

	_, err := runner.RunTrial(ctx, b, []agent.Agent{newScripted("A", 2, &calls, 0), newScripted("A", 2, &calls, 1)}, 1)
	assert.ErrorIs(t, err, ErrDuplicateAgent)

	_, err = runner.RunTrial(ctx, b, []agent.Agent{newScripted("A", 3, &calls, 0)}, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = runner.RunTrial(ctx, b, nil, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = runner.RunTrial(ctx, b, []agent.Agent{newScripted("A", 2, &calls, 0)}, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = runner.Run(ctx, b, []agent.Agent{newScripted("A", 2, &calls, 0)}, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = runner.RunTrial(ctx, b, []agent.Agent{newScripted("A", 2, &calls, 5)}, 1)
	assert.ErrorIs(t, err, bandit.ErrArmIndex)
}

func TestRunTrialHonoursCancellation(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(Config{}).RunTrial(ctx, constantBandit(t, 1, 1), []agent.Agent{newScripted("A", 1, &calls, 0)}, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}

func TestRunnerRecordsMetrics(t *testing.T) {
	var calls []string
	collector := metrics.NewCollector("test", zap.NewNop())
	runner := NewRunner(Config{Metrics: collector})

	_, err := runner.Run(context.Background(), constantBandit(t, 4, 1, 2), []agent.Agent{newScripted("A", 2, &calls, 1)}, 4, 2)
	require.NoError(t, err)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}
	assert.True(t, found["test_trials_total"])
	assert.True(t, found["test_pulls_total"])
	assert.True(t, found["test_final_cumulative_regret"])
	count, err := testutil.GatherAndCount(collector.Registry(), "test_pulls_total", "test_rounds_total", "test_final_cumulative_regret")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
