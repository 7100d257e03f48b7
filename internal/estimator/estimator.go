// Package estimator keeps the per-arm reward statistics that back an agent's
// Thompson Sampling belief. Arms are addressed by index into fixed-size slices.
package estimator

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidConfig  = errors.New("invalid estimator config")
	ErrArmIndex       = errors.New("arm index out of range")
	ErrNegativeStdDev = errors.New("negative standard deviation")
)

// Estimator produces a (mean, stdev) belief per arm from observed rewards.
type Estimator interface {
	NumArms() int
	Update(armID int, reward float64) error
	Estimate(armID int) (mean, stdev float64, err error)
	Count(armID int) (int, error)
}

func checkArm(armID, numArms int) error {
	if armID < 0 || armID >= numArms {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrArmIndex, armID, numArms)
	}
	return nil
}

// floorStdDev substitutes 1 for a zero deviation so the belief stays
// non-degenerate. A negative or NaN deviation is an arithmetic fault.
func floorStdDev(stdev float64) (float64, error) {
	if stdev < 0 || math.IsNaN(stdev) {
		return 0, fmt.Errorf("%w: %v", ErrNegativeStdDev, stdev)
	}
	if stdev == 0 {
		return 1, nil
	}
	return stdev, nil
}
