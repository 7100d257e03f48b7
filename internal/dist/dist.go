// Package dist provides the reward and phase-duration distributions used by the
// bandit environment and the Thompson Sampling agents. Every distribution draws
// from an explicit rand.Source so simulations are reproducible.
package dist

import (
	"errors"
	"math/rand/v2"
)

var ErrInvalidParameter = errors.New("invalid distribution parameter")

// Distribution is the numeric contract the simulator consumes.
type Distribution interface {
	Sample() float64
	Mean() float64
	// CDF returns P[X <= x].
	CDF(x float64) float64
	// TailProb returns P[X > x].
	TailProb(x float64) float64
	// Source is the random source Sample draws from.
	Source() rand.Source
	String() string
}

// NewSource returns a seeded PCG source. Distinct streams of the same seed are
// independent, which lets each trial or component own its own source.
func NewSource(seed, stream uint64) rand.Source {
	return rand.NewPCG(seed, stream)
}
