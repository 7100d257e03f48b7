package dist

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Discrete draws from an explicit support. Weights are normalised on construction.
type Discrete struct {
	values []float64
	probs  []float64
	cat    distuv.Categorical
	src    rand.Source
}

func NewDiscrete(values, weights []float64, src rand.Source) (*Discrete, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: discrete requires a random source", ErrInvalidParameter)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: discrete support is empty", ErrInvalidParameter)
	}
	if len(values) != len(weights) {
		return nil, fmt.Errorf("%w: discrete has %d values but %d weights", ErrInvalidParameter, len(values), len(weights))
	}

	total := 0.0
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: discrete weight %d must be finite and >= 0, got %v", ErrInvalidParameter, i, w)
		}
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return nil, fmt.Errorf("%w: discrete value %d must be finite, got %v", ErrInvalidParameter, i, values[i])
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: discrete weights must sum to > 0", ErrInvalidParameter)
	}

	probs := make([]float64, len(weights))
	for i, w := range weights {
		probs[i] = w / total
	}
	return &Discrete{
		values: append([]float64(nil), values...),
		probs:  probs,
		cat:    distuv.NewCategorical(weights, src),
		src:    src,
	}, nil
}

// NewConstant is a one-point distribution, handy for fixed phase durations.
func NewConstant(value float64, src rand.Source) (*Discrete, error) {
	return NewDiscrete([]float64{value}, []float64{1}, src)
}

func (d *Discrete) Sample() float64 {
	return d.values[int(d.cat.Rand())]
}

func (d *Discrete) Mean() float64 {
	mean := 0.0
	for i, v := range d.values {
		mean += d.probs[i] * v
	}
	return mean
}

func (d *Discrete) CDF(x float64) float64 {
	cdf := 0.0
	for i, v := range d.values {
		if v <= x {
			cdf += d.probs[i]
		}
	}
	if cdf > 1 {
		return 1
	}
	return cdf
}

func (d *Discrete) TailProb(x float64) float64 {
	return 1 - d.CDF(x)
}

func (d *Discrete) Source() rand.Source {
	return d.src
}

func (d *Discrete) String() string {
	parts := make([]string, 0, len(d.values))
	for i, v := range d.values {
		parts = append(parts, fmt.Sprintf("%g:%.4g", v, d.probs[i]))
	}
	return "Discrete(" + strings.Join(parts, ", ") + ")"
}
