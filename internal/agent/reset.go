package agent

import (
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"banditlab/internal/dist"
	"banditlab/internal/estimator"
)

// MinObservationsForTest is the number of rewards an arm's window must hold
// before a new reward is checked for rarity.
const MinObservationsForTest = 5

// ResetWindow is a sliding-window agent that discards an arm's window when a
// reward is implausible under the window's own Normal fit. The triggering
// reward is not recorded.
type ResetWindow struct {
	base
	window    *estimator.Window
	threshold float64
	onReset   func(armID int, tailMass float64)
	resets    int
}

func NewResetWindow(name string, numArms, winLen int, tailMassThreshold float64, src rand.Source, opts ...Option) (*ResetWindow, error) {
	b, o, err := newBase(KindResetWindow, name, numArms, src, opts)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(tailMassThreshold) || tailMassThreshold < 0 || tailMassThreshold > 1 {
		return nil, fmt.Errorf("%w: agent %s tail mass threshold must be in [0, 1], got %g", ErrInvalidConfig, name, tailMassThreshold)
	}
	window, err := newWindow(name, numArms, winLen)
	if err != nil {
		return nil, err
	}
	return &ResetWindow{
		base:      b,
		window:    window,
		threshold: tailMassThreshold,
		onReset:   o.onReset,
	}, nil
}

func (a *ResetWindow) NextAction() (int, error) {
	return thompsonAction(a.window, a.src)
}

func (a *ResetWindow) Observe(armID int, reward float64) error {
	held, err := a.window.Count(armID)
	if err != nil {
		return err
	}
	if held < MinObservationsForTest {
		return a.window.Update(armID, reward)
	}

	mean, stdev, err := a.window.Estimate(armID)
	if err != nil {
		return err
	}
	fit, err := dist.NewNormal(mean, stdev, a.src)
	if err != nil {
		return fmt.Errorf("arm %d window fit: %w", armID, err)
	}
	tailMass := math.Min(fit.TailProb(reward), fit.CDF(reward))
	if tailMass > a.threshold {
		return a.window.Update(armID, reward)
	}

	if err := a.window.Clear(armID); err != nil {
		return err
	}
	a.resets++
	a.logger.Debug("rare reward, window cleared",
		zap.Int("arm", armID),
		zap.Float64("reward", reward),
		zap.Float64("mean", mean),
		zap.Float64("stdev", stdev),
		zap.Float64("tail_mass", tailMass),
		zap.Float64("threshold", a.threshold),
		zap.Int("discarded", held),
	)
	if a.onReset != nil {
		a.onReset(armID, tailMass)
	}
	return nil
}

func (a *ResetWindow) Resets() int {
	return a.resets
}

func (a *ResetWindow) Threshold() float64 {
	return a.threshold
}

func (a *ResetWindow) Window() *estimator.Window {
	return a.window
}

func (a *ResetWindow) String() string {
	return fmt.Sprintf("ResetWindow(name=%s, arms=%d, win_len=%d, tail_mass_threshold=%g)",
		a.ref.Name, a.numArms, a.window.WinLen(), a.threshold)
}
