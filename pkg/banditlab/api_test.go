package banditlab

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"banditlab/internal/metrics"
)

const stationaryYAML = `
bandit:
  kind: stationary
  num_arms: 2
  num_high_reward: 1
  num_medium_reward: 0
  num_low_reward: 1
  high_reward: {kind: normal, mu: 10, sigma: 1}
  low_reward: {kind: normal, mu: 1, sigma: 1}
agents:
  - {kind: ts, name: TS}
  - {kind: ts_reset_window, name: TS-ResetWin, win_len: 20, tail_mass_threshold: 0.001}
  - {kind: random, name: Random}
rounds: 100
trials: 3
seed: 42
`

const highLowYAML = `
bandit:
  kind: high_low
  num_arms: 3
  num_high_reward: 1
  num_medium_reward: 1
  num_low_reward: 1
  high_reward: {kind: normal, mu: 10, sigma: 1}
  medium_reward: {kind: constant, value: 5}
  low_reward: {kind: normal, mu: 1, sigma: 1}
  phase_duration: {kind: discrete, values: [10, 20], weights: [3, 1]}
agents:
  - {kind: ts_sliding_window, name: TS-SlidingWin, win_len: 10}
  - {kind: ts_reset_window, name: TS-ResetWin, win_len: 10, tail_mass_threshold: 0.01}
rounds: 60
trials: 4
seed: 3
mode: independent
`

func newTestClient(t *testing.T, resultsDir string) *Client {
	t.Helper()
	client, err := New(Options{
		StoreKind:  "memory",
		ResultsDir: resultsDir,
		ExportsDir: filepath.Join(t.TempDir(), "exports"),
		Logger:     zap.NewNop(),
		Metrics:    metrics.NewCollector("test", zap.NewNop()),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestRunPersistsAndListsRun(t *testing.T) {
	ctx := context.Background()
	resultsDir := t.TempDir()
	client := newTestClient(t, resultsDir)

	exp, err := ParseExperiment([]byte(stationaryYAML))
	require.NoError(t, err)

	summary, err := client.Run(ctx, exp)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.Trials)
	assert.Equal(t, 100, summary.Rounds)
	assert.NotEqual(t, "Random", summary.BestAgent)
	require.Len(t, summary.Agents, 3)
	for _, file := range []string{"config.json", "summary.json", "mean_rewards.csv", "cumulative_regret.csv"} {
		_, err := os.Stat(filepath.Join(summary.ArtifactsDir, file))
		assert.NoError(t, err, file)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)
	assert.Equal(t, []string{"TS", "TS-ResetWin", "Random"}, runs[0].Agents)
	assert.Equal(t, ModeShared, runs[0].TrialMode)

	record, err := client.Show(ctx, ShowRequest{Latest: true})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, record.ID)
	assert.Len(t, record.MeanHighRewards, 100)
	require.Len(t, record.Agents, 3)
	assert.Less(t, record.Agents[0].CumulativeRegret[99], record.Agents[2].CumulativeRegret[99])

	families, err := client.Metrics().Registry().Gather()
	require.NoError(t, err)
	trials := 0.0
	for _, family := range families {
		if family.GetName() == "test_trials_total" {
			trials = family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 3.0, trials)
}

func TestRunsFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	resultsDir := t.TempDir()
	client := newTestClient(t, resultsDir)

	exp, err := ParseExperiment([]byte(stationaryYAML))
	require.NoError(t, err)
	summary, err := client.Run(ctx, exp)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(resultsDir, "run_index.json")))

	items, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, summary.RunID, items[0].RunID)
	assert.Equal(t, []string{"TS", "TS-ResetWin", "Random"}, items[0].Agents)
	assert.Equal(t, summary.BestAgent, items[0].BestAgent)
	assert.Equal(t, 100, items[0].Rounds)
}

func TestDeleteRemovesStoreRecordAndArtifacts(t *testing.T) {
	ctx := context.Background()
	resultsDir := t.TempDir()
	client := newTestClient(t, resultsDir)

	exp, err := ParseExperiment([]byte(stationaryYAML))
	require.NoError(t, err)
	summary, err := client.Run(ctx, exp)
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, DeleteRequest{RunID: summary.RunID}))

	_, err = client.Show(ctx, ShowRequest{RunID: summary.RunID})
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = os.Stat(filepath.Join(resultsDir, summary.RunID))
	assert.True(t, os.IsNotExist(err))
	items, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, client.Delete(ctx, DeleteRequest{RunID: summary.RunID}), ErrRunNotFound)
	assert.Error(t, client.Delete(ctx, DeleteRequest{}))
}

func TestShowFallsBackToArtifacts(t *testing.T) {
	ctx := context.Background()
	resultsDir := t.TempDir()

	exp, err := ParseExperiment([]byte(stationaryYAML))
	require.NoError(t, err)
	summary, err := newTestClient(t, resultsDir).Run(ctx, exp)
	require.NoError(t, err)

	fresh := newTestClient(t, resultsDir)
	original, err := fresh.Show(ctx, ShowRequest{RunID: summary.RunID})
	require.NoError(t, err)
	_, err = fresh.Show(ctx, ShowRequest{RunID: "missing"})
	assert.Error(t, err)

	assert.Equal(t, summary.RunID, original.ID)
	assert.Len(t, original.Agents, 3)
	assert.Equal(t, "TS-ResetWin", original.Agents[1].Agent.Name)
	assert.NotEmpty(t, original.CreatedAtUTC)
}

func TestIndependentRunsAreReproducible(t *testing.T) {
	ctx := context.Background()
	exp, err := ParseExperiment([]byte(highLowYAML))
	require.NoError(t, err)

	exp.Workers = 1
	serial, err := newTestClient(t, t.TempDir()).Run(ctx, exp)
	require.NoError(t, err)
	exp.Workers = 4
	parallel, err := newTestClient(t, t.TempDir()).Run(ctx, exp)
	require.NoError(t, err)

	assert.Equal(t, serial.Agents, parallel.Agents)
	assert.Equal(t, 4, parallel.Trials)
}

func TestCurveAndExport(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, t.TempDir())

	exp, err := ParseExperiment([]byte(stationaryYAML))
	require.NoError(t, err)
	summary, err := client.Run(ctx, exp)
	require.NoError(t, err)

	rewards, err := client.Curve(ctx, CurveRequest{RunID: summary.RunID, Step: 10})
	require.NoError(t, err)
	require.Len(t, rewards, 4)
	assert.Equal(t, "oracle", rewards[0].Name)
	require.Len(t, rewards[0].Points, 11)
	assert.Equal(t, 90, rewards[0].Points[9].Round)
	assert.Equal(t, 99, rewards[0].Points[10].Round)

	regrets, err := client.Curve(ctx, CurveRequest{Latest: true, Series: SeriesCumulativeRegret, Start: 99})
	require.NoError(t, err)
	require.Len(t, regrets, 3)
	assert.Len(t, regrets[0].Points, 1)

	_, err = client.Curve(ctx, CurveRequest{Latest: true, Series: "nope"})
	assert.Error(t, err)

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, exported.RunID)
	_, err = os.Stat(filepath.Join(exported.Directory, "summary.json"))
	assert.NoError(t, err)

	_, err = client.Export(ctx, ExportRequest{RunID: summary.RunID, Latest: true})
	assert.Error(t, err)
	_, err = client.Export(ctx, ExportRequest{})
	assert.Error(t, err)
}

func TestParseExperimentRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"unknown field": stationaryYAML + "colour: blue\n",
		"missing threshold": `
bandit: {kind: stationary, num_arms: 1, num_high_reward: 1, high_reward: {kind: constant, value: 1}}
agents: [{kind: ts_reset_window, name: R, win_len: 5}]
rounds: 1
trials: 1
`,
		"duplicate agent": `
bandit: {kind: stationary, num_arms: 1, num_high_reward: 1, high_reward: {kind: constant, value: 1}}
agents: [{kind: ts, name: A}, {kind: random, name: A}]
rounds: 1
trials: 1
`,
		"bad mode": `
bandit: {kind: stationary, num_arms: 1, num_high_reward: 1, high_reward: {kind: constant, value: 1}}
agents: [{kind: ts, name: A}]
rounds: 1
trials: 1
mode: sometimes
`,
		"zero rounds": `
bandit: {kind: stationary, num_arms: 1, num_high_reward: 1, high_reward: {kind: constant, value: 1}}
agents: [{kind: ts, name: A}]
trials: 1
`,
		"bad distribution": `
bandit: {kind: stationary, num_arms: 1, num_high_reward: 1, high_reward: {kind: normal, mu: 1, sigma: 0}}
agents: [{kind: ts, name: A}]
rounds: 1
trials: 1
`,
		"missing window": `
bandit: {kind: stationary, num_arms: 1, num_high_reward: 1, high_reward: {kind: constant, value: 1}}
agents: [{kind: ts_sliding_window, name: A}]
rounds: 1
trials: 1
`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseExperiment([]byte(input))
			assert.True(t, errors.Is(err, ErrInvalidExperiment), "got %v", err)
		})
	}
}

func TestRunSurfacesPartitionErrors(t *testing.T) {
	exp, err := ParseExperiment([]byte(stationaryYAML))
	require.NoError(t, err)
	exp.Bandit.NumArms = 3

	_, err = newTestClient(t, t.TempDir()).Run(context.Background(), exp)
	assert.Error(t, err)
}

func TestLoadExperimentFiles(t *testing.T) {
	for _, name := range []string{"stationary.yaml", "high_low.yaml"} {
		exp, err := LoadExperiment(filepath.Join("..", "..", "configs", name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, exp.Agents, name)
	}
}
