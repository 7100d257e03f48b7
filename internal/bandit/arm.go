package bandit

import (
	"fmt"
	"math"

	"banditlab/internal/dist"
)

// Arm is one reward-generating source.
type Arm interface {
	Name() string
	Pull() float64
	// Distributions lists every distribution Pull may sample.
	Distributions() []dist.Distribution
	String() string
}

type StationaryArm struct {
	name   string
	reward dist.Distribution
}

func NewStationaryArm(name string, reward dist.Distribution) (*StationaryArm, error) {
	if reward == nil {
		return nil, fmt.Errorf("%w: arm %s requires a reward distribution", ErrInvalidConfig, name)
	}
	return &StationaryArm{name: name, reward: reward}, nil
}

func (a *StationaryArm) Name() string {
	return a.name
}

func (a *StationaryArm) Pull() float64 {
	return a.reward.Sample()
}

func (a *StationaryArm) Distributions() []dist.Distribution {
	return []dist.Distribution{a.reward}
}

func (a *StationaryArm) String() string {
	return fmt.Sprintf("StationaryArm(name=%s, reward=%s)", a.name, a.reward)
}

type PhaseState int

const (
	PhaseHigh PhaseState = iota
	PhaseLow
)

func (s PhaseState) String() string {
	switch s {
	case PhaseHigh:
		return "high"
	case PhaseLow:
		return "low"
	default:
		return fmt.Sprintf("PhaseState(%d)", int(s))
	}
}

func (s PhaseState) flip() PhaseState {
	if s == PhaseHigh {
		return PhaseLow
	}
	return PhaseHigh
}

// HighLowArm alternates between a high-reward and a low-reward phase. Phase
// lengths are drawn from phaseDuration each time the current phase runs out.
type HighLowArm struct {
	name          string
	high          dist.Distribution
	low           dist.Distribution
	phaseDuration dist.Distribution

	state     PhaseState
	remaining int
	flips     int
}

// NewHighLowArm starts the arm in initial with an exhausted phase counter, so the
// first Pull switches out of initial before sampling.
func NewHighLowArm(name string, high, low, phaseDuration dist.Distribution, initial PhaseState) (*HighLowArm, error) {
	if high == nil || low == nil || phaseDuration == nil {
		return nil, fmt.Errorf("%w: arm %s requires high, low and phase duration distributions", ErrInvalidConfig, name)
	}
	if initial != PhaseHigh && initial != PhaseLow {
		return nil, fmt.Errorf("%w: arm %s has unknown initial phase %d", ErrInvalidConfig, name, int(initial))
	}
	return &HighLowArm{
		name:          name,
		high:          high,
		low:           low,
		phaseDuration: phaseDuration,
		state:         initial,
	}, nil
}

func (a *HighLowArm) Name() string {
	return a.name
}

// Pull flips the phase first when the counter is exhausted, then samples from
// the (possibly new) phase. A drawn duration d covers d pulls, the flipping pull
// included.
func (a *HighLowArm) Pull() float64 {
	if a.remaining == 0 {
		d := phaseLength(a.phaseDuration.Sample())
		a.remaining = d - 1
		a.state = a.state.flip()
		a.flips++
	} else {
		a.remaining--
	}

	if a.state == PhaseHigh {
		return a.high.Sample()
	}
	return a.low.Sample()
}

// maxPhaseLength caps a drawn phase duration.
const maxPhaseLength = math.MaxInt32

// phaseLength truncates a drawn duration to whole pulls in [1, maxPhaseLength].
// NaN and values below 1 give 1.
func phaseLength(sample float64) int {
	switch {
	case math.IsNaN(sample) || sample < 1:
		return 1
	case sample >= maxPhaseLength:
		return maxPhaseLength
	default:
		return int(sample)
	}
}

func (a *HighLowArm) State() PhaseState {
	return a.state
}

func (a *HighLowArm) Remaining() int {
	return a.remaining
}

func (a *HighLowArm) Flips() int {
	return a.flips
}

func (a *HighLowArm) Distributions() []dist.Distribution {
	return []dist.Distribution{a.high, a.low, a.phaseDuration}
}

func (a *HighLowArm) String() string {
	return fmt.Sprintf("HighLowArm(name=%s, high=%s, low=%s, phase_duration=%s)", a.name, a.high, a.low, a.phaseDuration)
}
