package model

import "github.com/google/uuid"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// AgentHandle identifies an agent across trials and result maps. It is derived
// from the agent name, so fresh instances built with the same name share a handle.
type AgentHandle string

var agentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("banditlab/agent"))

func NewAgentHandle(name string) AgentHandle {
	return AgentHandle(uuid.NewSHA1(agentNamespace, []byte(name)).String())
}

type AgentRef struct {
	Handle AgentHandle `json:"handle"`
	Name   string      `json:"name"`
	Kind   string      `json:"kind"`
}

type AgentSeries struct {
	Agent            AgentRef  `json:"agent"`
	MeanRewards      []float64 `json:"mean_rewards"`
	CumulativeRegret []float64 `json:"cumulative_regret"`
}

// RunRecord is the persisted outcome of one experiment: the aggregated curves
// plus the parameters needed to reproduce them.
type RunRecord struct {
	VersionedRecord
	ID              string        `json:"id"`
	CreatedAtUTC    string        `json:"created_at_utc"`
	BanditKind      string        `json:"bandit_kind"`
	NumArms         int           `json:"num_arms"`
	Rounds          int           `json:"rounds"`
	Trials          int           `json:"trials"`
	Seed            uint64        `json:"seed"`
	TrialMode       string        `json:"trial_mode"`
	MeanHighRewards []float64     `json:"mean_high_rewards"`
	Agents          []AgentSeries `json:"agents"`
}
