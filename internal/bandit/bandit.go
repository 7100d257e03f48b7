// Package bandit models the reward environment: a fixed set of arms plus the
// reference high-reward distribution the oracle draws from.
package bandit

import (
	"errors"
	"fmt"

	"banditlab/internal/dist"
)

var (
	ErrInvalidConfig = errors.New("invalid bandit config")
	ErrArmIndex      = errors.New("arm index out of range")
)

type Bandit struct {
	arms       []Arm
	highReward dist.Distribution
}

// New assembles a bandit from prebuilt arms. highReward is the oracle's reference
// distribution and is not tied to any arm index.
func New(arms []Arm, highReward dist.Distribution) (*Bandit, error) {
	if len(arms) == 0 {
		return nil, fmt.Errorf("%w: at least one arm is required", ErrInvalidConfig)
	}
	if highReward == nil {
		return nil, fmt.Errorf("%w: high reward distribution is required", ErrInvalidConfig)
	}
	for i, arm := range arms {
		if arm == nil {
			return nil, fmt.Errorf("%w: arm %d is nil", ErrInvalidConfig, i)
		}
	}
	return &Bandit{arms: append([]Arm(nil), arms...), highReward: highReward}, nil
}

func (b *Bandit) NumArms() int {
	return len(b.arms)
}

func (b *Bandit) Arm(armID int) (Arm, error) {
	if armID < 0 || armID >= len(b.arms) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrArmIndex, armID, len(b.arms))
	}
	return b.arms[armID], nil
}

func (b *Bandit) Pull(armID int) (float64, error) {
	arm, err := b.Arm(armID)
	if err != nil {
		return 0, err
	}
	return arm.Pull(), nil
}

// PullHighReward draws the oracle's reward for the round.
func (b *Bandit) PullHighReward() float64 {
	return b.highReward.Sample()
}

func (b *Bandit) HighReward() dist.Distribution {
	return b.highReward
}

func (b *Bandit) ArmNames() []string {
	names := make([]string, 0, len(b.arms))
	for _, arm := range b.arms {
		names = append(names, arm.Name())
	}
	return names
}

func (b *Bandit) String() string {
	return fmt.Sprintf("Bandit(num_arms=%d, high_reward=%s)", len(b.arms), b.highReward)
}
