package bandit

import (
	"fmt"

	"banditlab/internal/dist"
)

// Partition splits NumArms into high, medium and low reward arms. Arms are laid
// out in that order: high-designated arms take the lowest indices.
type Partition struct {
	NumArms         int
	NumHighReward   int
	NumMediumReward int
	NumLowReward    int
}

func (p Partition) Validate() error {
	if p.NumArms <= 0 {
		return fmt.Errorf("%w: num arms must be > 0, got %d", ErrInvalidConfig, p.NumArms)
	}
	if p.NumHighReward < 0 || p.NumMediumReward < 0 || p.NumLowReward < 0 {
		return fmt.Errorf("%w: arm counts must be >= 0 (high=%d medium=%d low=%d)", ErrInvalidConfig, p.NumHighReward, p.NumMediumReward, p.NumLowReward)
	}
	if p.NumHighReward > p.NumArms {
		return fmt.Errorf("%w: num arms with high reward %d exceeds num arms %d", ErrInvalidConfig, p.NumHighReward, p.NumArms)
	}
	if sum := p.NumHighReward + p.NumMediumReward + p.NumLowReward; sum != p.NumArms {
		return fmt.Errorf("%w: high+medium+low=%d does not match num arms %d", ErrInvalidConfig, sum, p.NumArms)
	}
	return nil
}

type StationaryConfig struct {
	Partition
	HighReward   dist.Distribution
	MediumReward dist.Distribution
	LowReward    dist.Distribution
}

// NewStationary builds a bandit whose arms all keep a fixed reward distribution.
func NewStationary(cfg StationaryConfig) (*Bandit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HighReward == nil {
		return nil, fmt.Errorf("%w: high reward distribution is required", ErrInvalidConfig)
	}
	if cfg.NumMediumReward > 0 && cfg.MediumReward == nil {
		return nil, fmt.Errorf("%w: medium reward distribution is required for %d medium arms", ErrInvalidConfig, cfg.NumMediumReward)
	}
	if cfg.NumLowReward > 0 && cfg.LowReward == nil {
		return nil, fmt.Errorf("%w: low reward distribution is required for %d low arms", ErrInvalidConfig, cfg.NumLowReward)
	}

	arms := make([]Arm, 0, cfg.NumArms)
	appendStationary := func(count int, reward dist.Distribution) error {
		for i := 0; i < count; i++ {
			arm, err := NewStationaryArm(armName(len(arms)), reward)
			if err != nil {
				return err
			}
			arms = append(arms, arm)
		}
		return nil
	}
	if err := appendStationary(cfg.NumHighReward, cfg.HighReward); err != nil {
		return nil, err
	}
	if err := appendStationary(cfg.NumMediumReward, cfg.MediumReward); err != nil {
		return nil, err
	}
	if err := appendStationary(cfg.NumLowReward, cfg.LowReward); err != nil {
		return nil, err
	}
	return New(arms, cfg.HighReward)
}

type HighLowConfig struct {
	Partition
	HighReward    dist.Distribution
	MediumReward  dist.Distribution
	LowReward     dist.Distribution
	PhaseDuration dist.Distribution
	InitialPhase  PhaseState
}

// NewHighLow builds a non-stationary bandit: every high-designated arm switches
// between HighReward and LowReward phases, the remaining arms are stationary.
func NewHighLow(cfg HighLowConfig) (*Bandit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HighReward == nil || cfg.LowReward == nil {
		return nil, fmt.Errorf("%w: high and low reward distributions are required", ErrInvalidConfig)
	}
	if cfg.NumHighReward > 0 && cfg.PhaseDuration == nil {
		return nil, fmt.Errorf("%w: phase duration distribution is required for %d switching arms", ErrInvalidConfig, cfg.NumHighReward)
	}
	if cfg.NumMediumReward > 0 && cfg.MediumReward == nil {
		return nil, fmt.Errorf("%w: medium reward distribution is required for %d medium arms", ErrInvalidConfig, cfg.NumMediumReward)
	}

	arms := make([]Arm, 0, cfg.NumArms)
	for i := 0; i < cfg.NumHighReward; i++ {
		arm, err := NewHighLowArm(armName(len(arms)), cfg.HighReward, cfg.LowReward, cfg.PhaseDuration, cfg.InitialPhase)
		if err != nil {
			return nil, err
		}
		arms = append(arms, arm)
	}
	for i := 0; i < cfg.NumMediumReward; i++ {
		arm, err := NewStationaryArm(armName(len(arms)), cfg.MediumReward)
		if err != nil {
			return nil, err
		}
		arms = append(arms, arm)
	}
	for i := 0; i < cfg.NumLowReward; i++ {
		arm, err := NewStationaryArm(armName(len(arms)), cfg.LowReward)
		if err != nil {
			return nil, err
		}
		arms = append(arms, arm)
	}
	return New(arms, cfg.HighReward)
}

func armName(index int) string {
	return fmt.Sprintf("arm-%d", index)
}
