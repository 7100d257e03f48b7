package banditlab

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"banditlab/internal/agent"
	"banditlab/internal/dist"
)

const (
	BanditStationary = "stationary"
	BanditHighLow    = "high_low"

	ModeShared      = "shared"
	ModeIndependent = "independent"
)

var ErrInvalidExperiment = errors.New("invalid experiment")

// Experiment is the complete description of a run, as read from an
// experiment file.
type Experiment struct {
	Bandit  BanditSpec  `yaml:"bandit" json:"bandit"`
	Agents  []AgentSpec `yaml:"agents" json:"agents"`
	Rounds  int         `yaml:"rounds" json:"rounds"`
	Trials  int         `yaml:"trials" json:"trials"`
	Seed    uint64      `yaml:"seed" json:"seed"`
	Mode    string      `yaml:"mode,omitempty" json:"mode,omitempty"`
	Workers int         `yaml:"workers,omitempty" json:"workers,omitempty"`
}

type BanditSpec struct {
	Kind            string     `yaml:"kind" json:"kind"`
	NumArms         int        `yaml:"num_arms" json:"num_arms"`
	NumHighReward   int        `yaml:"num_high_reward" json:"num_high_reward"`
	NumMediumReward int        `yaml:"num_medium_reward" json:"num_medium_reward"`
	NumLowReward    int        `yaml:"num_low_reward" json:"num_low_reward"`
	HighReward      *dist.Spec `yaml:"high_reward" json:"high_reward"`
	MediumReward    *dist.Spec `yaml:"medium_reward,omitempty" json:"medium_reward,omitempty"`
	LowReward       *dist.Spec `yaml:"low_reward,omitempty" json:"low_reward,omitempty"`
	PhaseDuration   *dist.Spec `yaml:"phase_duration,omitempty" json:"phase_duration,omitempty"`
	// InitialPhase is the phase a switching arm holds before its first pull,
	// which flips it. Empty means high.
	InitialPhase string `yaml:"initial_phase,omitempty" json:"initial_phase,omitempty"`
}

type AgentSpec struct {
	Kind              string   `yaml:"kind" json:"kind"`
	Name              string   `yaml:"name" json:"name"`
	WinLen            int      `yaml:"win_len,omitempty" json:"win_len,omitempty"`
	TailMassThreshold *float64 `yaml:"tail_mass_threshold,omitempty" json:"tail_mass_threshold,omitempty"`
}

func LoadExperiment(path string) (Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Experiment{}, err
	}
	exp, err := ParseExperiment(data)
	if err != nil {
		return Experiment{}, fmt.Errorf("%s: %w", path, err)
	}
	return exp, nil
}

// ParseExperiment decodes YAML, rejecting unknown keys, and validates the result.
func ParseExperiment(data []byte) (Experiment, error) {
	var exp Experiment
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&exp); err != nil {
		return Experiment{}, fmt.Errorf("%w: %v", ErrInvalidExperiment, err)
	}
	if err := exp.Validate(); err != nil {
		return Experiment{}, err
	}
	return exp, nil
}

func (e Experiment) mode() string {
	if e.Mode == "" {
		return ModeShared
	}
	return strings.ToLower(e.Mode)
}

func (e Experiment) Validate() error {
	if e.Rounds <= 0 {
		return fmt.Errorf("%w: rounds must be > 0, got %d", ErrInvalidExperiment, e.Rounds)
	}
	if e.Trials <= 0 {
		return fmt.Errorf("%w: trials must be > 0, got %d", ErrInvalidExperiment, e.Trials)
	}
	switch e.mode() {
	case ModeShared, ModeIndependent:
	default:
		return fmt.Errorf("%w: unsupported mode: %s", ErrInvalidExperiment, e.Mode)
	}
	if e.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidExperiment, e.Workers)
	}
	if err := e.Bandit.validate(); err != nil {
		return err
	}
	if len(e.Agents) == 0 {
		return fmt.Errorf("%w: at least one agent is required", ErrInvalidExperiment)
	}
	names := make(map[string]struct{}, len(e.Agents))
	for i, a := range e.Agents {
		if err := a.validate(); err != nil {
			return fmt.Errorf("agent %d: %w", i, err)
		}
		if _, ok := names[a.Name]; ok {
			return fmt.Errorf("%w: duplicate agent name %s", ErrInvalidExperiment, a.Name)
		}
		names[a.Name] = struct{}{}
	}
	return nil
}

func (b BanditSpec) validate() error {
	switch strings.ToLower(b.Kind) {
	case BanditStationary, BanditHighLow:
	case "":
		return fmt.Errorf("%w: bandit kind is required", ErrInvalidExperiment)
	default:
		return fmt.Errorf("%w: unsupported bandit kind: %s", ErrInvalidExperiment, b.Kind)
	}
	if _, err := parsePhase(b.InitialPhase); err != nil {
		return err
	}
	specs := map[string]*dist.Spec{
		"high_reward":    b.HighReward,
		"medium_reward":  b.MediumReward,
		"low_reward":     b.LowReward,
		"phase_duration": b.PhaseDuration,
	}
	for name, spec := range specs {
		if spec == nil {
			continue
		}
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidExperiment, name, err)
		}
	}
	return nil
}

func (a AgentSpec) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: agent name is required", ErrInvalidExperiment)
	}
	switch strings.ToLower(a.Kind) {
	case agent.KindThompson, agent.KindRandom:
	case agent.KindSlidingWindow:
		if a.WinLen <= 0 {
			return fmt.Errorf("%w: agent %s requires win_len > 0", ErrInvalidExperiment, a.Name)
		}
	case agent.KindResetWindow:
		if a.WinLen <= 0 {
			return fmt.Errorf("%w: agent %s requires win_len > 0", ErrInvalidExperiment, a.Name)
		}
		if a.TailMassThreshold == nil {
			return fmt.Errorf("%w: agent %s requires tail_mass_threshold", ErrInvalidExperiment, a.Name)
		}
	case "":
		return fmt.Errorf("%w: agent %s kind is required", ErrInvalidExperiment, a.Name)
	default:
		return fmt.Errorf("%w: agent %s has unsupported kind: %s", ErrInvalidExperiment, a.Name, a.Kind)
	}
	return nil
}
