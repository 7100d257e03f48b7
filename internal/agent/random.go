package agent

import (
	"fmt"
	"math/rand/v2"
)

// Random plays a uniformly chosen arm and ignores rewards. It is the
// regret baseline the Thompson variants are compared against.
type Random struct {
	base
	rng *rand.Rand
}

func NewRandom(name string, numArms int, src rand.Source, opts ...Option) (*Random, error) {
	b, _, err := newBase(KindRandom, name, numArms, src, opts)
	if err != nil {
		return nil, err
	}
	return &Random{base: b, rng: rand.New(src)}, nil
}

func (a *Random) NextAction() (int, error) {
	return a.rng.IntN(a.numArms), nil
}

func (a *Random) Observe(armID int, _ float64) error {
	if armID < 0 || armID >= a.numArms {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrArmIndex, armID, a.numArms)
	}
	return nil
}

func (a *Random) String() string {
	return fmt.Sprintf("Random(name=%s, arms=%d)", a.ref.Name, a.numArms)
}
