package stats

import (
	"fmt"

	"banditlab/internal/model"
)

// MeanSimResult is the per-round average over trials together with each
// agent's cumulative mean regret against the oracle.
type MeanSimResult struct {
	Trials          int                 `json:"trials"`
	Rounds          int                 `json:"rounds"`
	MeanHighRewards []float64           `json:"mean_high_rewards"`
	Agents          []model.AgentSeries `json:"agents"`
}

func (m *MeanSimResult) Agent(handle model.AgentHandle) (model.AgentSeries, error) {
	for _, series := range m.Agents {
		if series.Agent.Handle == handle {
			return series, nil
		}
	}
	return model.AgentSeries{}, fmt.Errorf("%w: %s", ErrUnknownAgent, handle)
}

// Aggregator folds trial results into running per-round means. The first
// result fixes the agent lineup and the number of rounds.
type Aggregator struct {
	trials      int
	agents      []model.AgentRef
	meanHigh    []float64
	meanRewards map[model.AgentHandle][]float64
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) Trials() int {
	return a.trials
}

func (a *Aggregator) Add(result *SimResult) error {
	if result == nil {
		return fmt.Errorf("%w: trial result is nil", ErrNoTrials)
	}
	if err := result.Validate(); err != nil {
		return err
	}
	if a.trials == 0 {
		a.agents = result.Agents()
		a.meanHigh = result.HighRewards()
		a.meanRewards = make(map[model.AgentHandle][]float64, len(result.agents))
		for i, ref := range result.agents {
			a.meanRewards[ref.Handle] = append([]float64(nil), result.rewards[i]...)
		}
		a.trials = 1
		return nil
	}

	if result.Rounds() != len(a.meanHigh) {
		return fmt.Errorf("%w: trial has %d rounds, expected %d", ErrLengthMismatch, result.Rounds(), len(a.meanHigh))
	}
	if len(result.agents) != len(a.agents) {
		return fmt.Errorf("%w: trial has %d agents, expected %d", ErrLineupMismatch, len(result.agents), len(a.agents))
	}
	for _, ref := range result.agents {
		if _, ok := a.meanRewards[ref.Handle]; !ok {
			return fmt.Errorf("%w: agent %s not in first trial", ErrLineupMismatch, ref.Name)
		}
	}

	k := float64(a.trials)
	foldMean(a.meanHigh, result.highRewards, k)
	for i, ref := range result.agents {
		foldMean(a.meanRewards[ref.Handle], result.rewards[i], k)
	}
	a.trials++
	return nil
}

// foldMean updates mean, which already averages k trials, with one more trial.
func foldMean(mean, values []float64, k float64) {
	for i, v := range values {
		mean[i] = mean[i]*k/(k+1) + v/(k+1)
	}
}

func (a *Aggregator) Result() (*MeanSimResult, error) {
	if a.trials == 0 {
		return nil, ErrNoTrials
	}
	out := &MeanSimResult{
		Trials:          a.trials,
		Rounds:          len(a.meanHigh),
		MeanHighRewards: append([]float64(nil), a.meanHigh...),
		Agents:          make([]model.AgentSeries, 0, len(a.agents)),
	}
	for _, ref := range a.agents {
		mean := append([]float64(nil), a.meanRewards[ref.Handle]...)
		regret, err := CumulativeRegret(a.meanHigh, mean)
		if err != nil {
			return nil, err
		}
		out.Agents = append(out.Agents, model.AgentSeries{
			Agent:            ref,
			MeanRewards:      mean,
			CumulativeRegret: regret,
		})
	}
	return out, nil
}

// Aggregate averages results in order.
func Aggregate(results []*SimResult) (*MeanSimResult, error) {
	agg := NewAggregator()
	for i, result := range results {
		if err := agg.Add(result); err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
	}
	return agg.Result()
}

// CumulativeRegret returns cum[t] = cum[t-1] + (oracle[t] - rewards[t]).
func CumulativeRegret(oracle, rewards []float64) ([]float64, error) {
	if len(oracle) != len(rewards) {
		return nil, fmt.Errorf("%w: oracle has %d rounds, rewards have %d", ErrLengthMismatch, len(oracle), len(rewards))
	}
	out := make([]float64, len(oracle))
	sum := 0.0
	for t := range oracle {
		sum += oracle[t] - rewards[t]
		out[t] = sum
	}
	return out, nil
}

// FinalRegret is the last value of a cumulative regret curve, or 0 when empty.
func FinalRegret(series model.AgentSeries) float64 {
	if len(series.CumulativeRegret) == 0 {
		return 0
	}
	return series.CumulativeRegret[len(series.CumulativeRegret)-1]
}
