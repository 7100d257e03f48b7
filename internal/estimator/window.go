package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ring is a bounded FIFO of the most recent rewards for one arm.
type ring struct {
	values []float64
	start  int
	size   int
}

func newRing(capacity int) ring {
	return ring{values: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	capacity := len(r.values)
	if r.size < capacity {
		r.values[(r.start+r.size)%capacity] = v
		r.size++
		return
	}
	r.values[r.start] = v
	r.start = (r.start + 1) % capacity
}

func (r *ring) clear() {
	r.start = 0
	r.size = 0
}

// snapshot returns the contents oldest first.
func (r *ring) snapshot() []float64 {
	out := make([]float64, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.values[(r.start+i)%len(r.values)])
	}
	return out
}

// Window keeps the last winLen rewards per arm. Reads recompute the sample
// mean and population deviation over the window contents.
type Window struct {
	winLen int
	rings  []ring
}

func NewWindow(numArms, winLen int) (*Window, error) {
	if numArms <= 0 {
		return nil, fmt.Errorf("%w: num arms must be > 0, got %d", ErrInvalidConfig, numArms)
	}
	if winLen <= 0 {
		return nil, fmt.Errorf("%w: window length must be > 0, got %d", ErrInvalidConfig, winLen)
	}
	rings := make([]ring, numArms)
	for i := range rings {
		rings[i] = newRing(winLen)
	}
	return &Window{winLen: winLen, rings: rings}, nil
}

func (w *Window) NumArms() int {
	return len(w.rings)
}

func (w *Window) WinLen() int {
	return w.winLen
}

func (w *Window) Update(armID int, reward float64) error {
	if err := checkArm(armID, len(w.rings)); err != nil {
		return err
	}
	w.rings[armID].push(reward)
	return nil
}

// Estimate falls back to (0, 1) for an empty window.
func (w *Window) Estimate(armID int) (float64, float64, error) {
	if err := checkArm(armID, len(w.rings)); err != nil {
		return 0, 0, err
	}
	r := &w.rings[armID]
	if r.size == 0 {
		return 0, 1, nil
	}
	// The two-pass variance can round to a tiny negative for identical values.
	mean, variance := stat.PopMeanVariance(r.snapshot(), nil)
	stdev, err := floorStdDev(math.Sqrt(math.Max(0, variance)))
	if err != nil {
		return 0, 0, fmt.Errorf("arm %d: %w", armID, err)
	}
	return mean, stdev, nil
}

func (w *Window) Count(armID int) (int, error) {
	if err := checkArm(armID, len(w.rings)); err != nil {
		return 0, err
	}
	return w.rings[armID].size, nil
}

// Clear discards every reward held for armID.
func (w *Window) Clear(armID int) error {
	if err := checkArm(armID, len(w.rings)); err != nil {
		return err
	}
	w.rings[armID].clear()
	return nil
}

// Values returns a copy of the window for armID, oldest first.
func (w *Window) Values(armID int) ([]float64, error) {
	if err := checkArm(armID, len(w.rings)); err != nil {
		return nil, err
	}
	return w.rings[armID].snapshot(), nil
}
