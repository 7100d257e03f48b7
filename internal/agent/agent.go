// Package agent implements the decision makers. Every Thompson Sampling variant
// draws one sample per arm from a Normal(mean, stdev) belief and plays the arm
// with the largest sample; the variants differ only in how the belief is kept.
package agent

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"banditlab/internal/dist"
	"banditlab/internal/estimator"
	"banditlab/internal/logging"
	"banditlab/internal/model"
)

const (
	KindThompson      = "ts"
	KindSlidingWindow = "ts_sliding_window"
	KindResetWindow   = "ts_reset_window"
	KindRandom        = "random"
)

var (
	ErrInvalidConfig = errors.New("invalid agent config")
	ErrArmIndex      = estimator.ErrArmIndex
)

type Agent interface {
	Ref() model.AgentRef
	NumArms() int
	NextAction() (int, error)
	Observe(armID int, reward float64) error
	String() string
}

type Option func(*options)

type options struct {
	logger  *zap.Logger
	onReset func(armID int, tailMass float64)
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithResetHook is called each time a reset-on-rare-event agent discards an arm's window.
func WithResetHook(fn func(armID int, tailMass float64)) Option {
	return func(o *options) {
		o.onReset = fn
	}
}

type base struct {
	ref     model.AgentRef
	numArms int
	src     rand.Source
	logger  *zap.Logger
}

func newBase(kind, name string, numArms int, src rand.Source, opts []Option) (base, options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if name == "" {
		return base{}, o, fmt.Errorf("%w: agent name is required", ErrInvalidConfig)
	}
	if numArms <= 0 {
		return base{}, o, fmt.Errorf("%w: agent %s num arms must be > 0, got %d", ErrInvalidConfig, name, numArms)
	}
	if src == nil {
		return base{}, o, fmt.Errorf("%w: agent %s requires a random source", ErrInvalidConfig, name)
	}
	ref := model.AgentRef{Handle: model.NewAgentHandle(name), Name: name, Kind: kind}
	logger := logging.OrNop(o.logger).With(zap.String("agent", name), zap.String("kind", kind))
	return base{ref: ref, numArms: numArms, src: src, logger: logger}, o, nil
}

func (b *base) Ref() model.AgentRef {
	return b.ref
}

// Source is the random source the agent samples its beliefs from.
func (b *base) Source() rand.Source {
	return b.src
}

func (b *base) NumArms() int {
	return b.numArms
}

// thompsonAction samples every arm's belief in index order. Only a strictly
// greater sample replaces the incumbent, so ties keep the lower index.
func thompsonAction(est estimator.Estimator, src rand.Source) (int, error) {
	action, best := -1, math.Inf(-1)
	for armID := 0; armID < est.NumArms(); armID++ {
		mean, stdev, err := est.Estimate(armID)
		if err != nil {
			return 0, err
		}
		belief, err := dist.NewNormal(mean, stdev, src)
		if err != nil {
			return 0, fmt.Errorf("arm %d belief: %w", armID, err)
		}
		if s := belief.Sample(); s > best {
			best = s
			action = armID
		}
	}
	if action < 0 {
		return 0, errors.New("no arm produced a finite belief sample")
	}
	return action, nil
}
