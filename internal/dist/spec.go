package dist

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	KindNormal   = "normal"
	KindDiscrete = "discrete"
	KindConstant = "constant"
)

// Spec is the declarative form of a distribution as it appears in experiment files.
type Spec struct {
	Kind    string    `json:"kind" yaml:"kind"`
	Mu      float64   `json:"mu,omitempty" yaml:"mu,omitempty"`
	Sigma   float64   `json:"sigma,omitempty" yaml:"sigma,omitempty"`
	Values  []float64 `json:"values,omitempty" yaml:"values,omitempty"`
	Weights []float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	Value   float64   `json:"value,omitempty" yaml:"value,omitempty"`
}

func (s Spec) Build(src rand.Source) (Distribution, error) {
	switch strings.TrimSpace(strings.ToLower(s.Kind)) {
	case KindNormal:
		return NewNormal(s.Mu, s.Sigma, src)
	case KindDiscrete:
		return NewDiscrete(s.Values, s.Weights, src)
	case KindConstant:
		return NewConstant(s.Value, src)
	case "":
		return nil, fmt.Errorf("%w: distribution kind is required", ErrInvalidParameter)
	default:
		return nil, fmt.Errorf("%w: unsupported distribution kind: %s", ErrInvalidParameter, s.Kind)
	}
}

// Validate builds the distribution against a throwaway source.
func (s Spec) Validate() error {
	_, err := s.Build(NewSource(0, 0))
	return err
}
