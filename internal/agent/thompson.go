package agent

import (
	"fmt"
	"math/rand/v2"

	"banditlab/internal/estimator"
)

// ThompsonSampling keeps exact running statistics over every reward ever seen.
type ThompsonSampling struct {
	base
	est *estimator.Exact
}

func NewThompsonSampling(name string, numArms int, src rand.Source, opts ...Option) (*ThompsonSampling, error) {
	b, _, err := newBase(KindThompson, name, numArms, src, opts)
	if err != nil {
		return nil, err
	}
	est, err := estimator.NewExact(numArms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &ThompsonSampling{base: b, est: est}, nil
}

func (a *ThompsonSampling) NextAction() (int, error) {
	return thompsonAction(a.est, a.src)
}

func (a *ThompsonSampling) Observe(armID int, reward float64) error {
	return a.est.Update(armID, reward)
}

func (a *ThompsonSampling) Estimator() *estimator.Exact {
	return a.est
}

func (a *ThompsonSampling) String() string {
	return fmt.Sprintf("ThompsonSampling(name=%s, arms=%d)", a.ref.Name, a.numArms)
}

// SlidingWindow bases each arm's belief on its most recent winLen rewards.
type SlidingWindow struct {
	base
	window *estimator.Window
}

func NewSlidingWindow(name string, numArms, winLen int, src rand.Source, opts ...Option) (*SlidingWindow, error) {
	b, _, err := newBase(KindSlidingWindow, name, numArms, src, opts)
	if err != nil {
		return nil, err
	}
	window, err := newWindow(name, numArms, winLen)
	if err != nil {
		return nil, err
	}
	return &SlidingWindow{base: b, window: window}, nil
}

func (a *SlidingWindow) NextAction() (int, error) {
	return thompsonAction(a.window, a.src)
}

func (a *SlidingWindow) Observe(armID int, reward float64) error {
	return a.window.Update(armID, reward)
}

func (a *SlidingWindow) Window() *estimator.Window {
	return a.window
}

func (a *SlidingWindow) String() string {
	return fmt.Sprintf("SlidingWindow(name=%s, arms=%d, win_len=%d)", a.ref.Name, a.numArms, a.window.WinLen())
}

func newWindow(name string, numArms, winLen int) (*estimator.Window, error) {
	if winLen <= 0 {
		return nil, fmt.Errorf("%w: agent %s window length must be > 0, got %d", ErrInvalidConfig, name, winLen)
	}
	window, err := estimator.NewWindow(numArms, winLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return window, nil
}
