// Package stats collects per-trial reward series, averages them across trials
// and writes the resulting curves as run artifacts.
package stats

import (
	"errors"
	"fmt"

	"banditlab/internal/model"
)

var (
	ErrLengthMismatch = errors.New("series length mismatch")
	ErrLineupMismatch = errors.New("agent lineup mismatch")
	ErrNoTrials       = errors.New("no trials to aggregate")
	ErrUnknownAgent   = errors.New("unknown agent")
)

// SimResult holds the rewards of one trial: one series per agent plus the
// oracle series, all indexed by round.
type SimResult struct {
	agents      []model.AgentRef
	index       map[model.AgentHandle]int
	rewards     [][]float64
	highRewards []float64
}

func NewSimResult(agents []model.AgentRef) (*SimResult, error) {
	index := make(map[model.AgentHandle]int, len(agents))
	for i, ref := range agents {
		if _, ok := index[ref.Handle]; ok {
			return nil, fmt.Errorf("%w: agent %s listed twice", ErrLineupMismatch, ref.Name)
		}
		index[ref.Handle] = i
	}
	return &SimResult{
		agents:  append([]model.AgentRef(nil), agents...),
		index:   index,
		rewards: make([][]float64, len(agents)),
	}, nil
}

func (r *SimResult) Agents() []model.AgentRef {
	return append([]model.AgentRef(nil), r.agents...)
}

func (r *SimResult) AppendReward(handle model.AgentHandle, reward float64) error {
	i, ok := r.index[handle]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, handle)
	}
	r.rewards[i] = append(r.rewards[i], reward)
	return nil
}

func (r *SimResult) AppendHighReward(reward float64) {
	r.highRewards = append(r.highRewards, reward)
}

func (r *SimResult) Rewards(handle model.AgentHandle) ([]float64, error) {
	i, ok := r.index[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, handle)
	}
	return append([]float64(nil), r.rewards[i]...), nil
}

func (r *SimResult) HighRewards() []float64 {
	return append([]float64(nil), r.highRewards...)
}

// Rounds is the length of the oracle series.
func (r *SimResult) Rounds() int {
	return len(r.highRewards)
}

// Validate checks that every agent series is as long as the oracle series.
func (r *SimResult) Validate() error {
	for i, series := range r.rewards {
		if len(series) != len(r.highRewards) {
			return fmt.Errorf("%w: agent %s has %d rewards, oracle has %d",
				ErrLengthMismatch, r.agents[i].Name, len(series), len(r.highRewards))
		}
	}
	return nil
}
