package dist

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

type Normal struct {
	d distuv.Normal
}

func NewNormal(mu, sigma float64, src rand.Source) (*Normal, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: normal requires a random source", ErrInvalidParameter)
	}
	if math.IsNaN(mu) || math.IsInf(mu, 0) {
		return nil, fmt.Errorf("%w: normal mu must be finite, got %v", ErrInvalidParameter, mu)
	}
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("%w: normal sigma must be > 0, got %v", ErrInvalidParameter, sigma)
	}
	return &Normal{d: distuv.Normal{Mu: mu, Sigma: sigma, Src: src}}, nil
}

func (n *Normal) Sample() float64 {
	return n.d.Rand()
}

func (n *Normal) Mean() float64 {
	return n.d.Mu
}

func (n *Normal) StdDev() float64 {
	return n.d.Sigma
}

func (n *Normal) CDF(x float64) float64 {
	return n.d.CDF(x)
}

func (n *Normal) TailProb(x float64) float64 {
	return n.d.Survival(x)
}

func (n *Normal) Source() rand.Source {
	return n.d.Src
}

func (n *Normal) String() string {
	return fmt.Sprintf("Normal(mu=%g, sigma=%g)", n.d.Mu, n.d.Sigma)
}
