package estimator

import (
	"fmt"
	"math"
)

// RewardRecord compresses an arm's full history into two running moments.
type RewardRecord struct {
	Count        int
	Mean         float64
	SecondMoment float64
}

func (r *RewardRecord) Observe(reward float64) {
	n := float64(r.Count)
	r.Mean = (n*r.Mean + reward) / (n + 1)
	r.SecondMoment = (n*r.SecondMoment + reward*reward) / (n + 1)
	r.Count++
}

// RawStdDev is sqrt(max(0, mean² - second moment)). This is the historical
// formula of the simulator and is kept bit-for-bit for result compatibility;
// it is not the textbook E[r²] - E[r]².
func (r RewardRecord) RawStdDev() float64 {
	return math.Sqrt(math.Max(0, r.Mean*r.Mean-r.SecondMoment))
}

// Exact is the unbounded-history estimator: O(1) update and read.
type Exact struct {
	records []RewardRecord
}

func NewExact(numArms int) (*Exact, error) {
	if numArms <= 0 {
		return nil, fmt.Errorf("%w: num arms must be > 0, got %d", ErrInvalidConfig, numArms)
	}
	return &Exact{records: make([]RewardRecord, numArms)}, nil
}

func (e *Exact) NumArms() int {
	return len(e.records)
}

func (e *Exact) Update(armID int, reward float64) error {
	if err := checkArm(armID, len(e.records)); err != nil {
		return err
	}
	e.records[armID].Observe(reward)
	return nil
}

func (e *Exact) Estimate(armID int) (float64, float64, error) {
	if err := checkArm(armID, len(e.records)); err != nil {
		return 0, 0, err
	}
	record := e.records[armID]
	stdev, err := floorStdDev(record.RawStdDev())
	if err != nil {
		return 0, 0, fmt.Errorf("arm %d: %w", armID, err)
	}
	return record.Mean, stdev, nil
}

func (e *Exact) Count(armID int) (int, error) {
	if err := checkArm(armID, len(e.records)); err != nil {
		return 0, err
	}
	return e.records[armID].Count, nil
}

func (e *Exact) Record(armID int) (RewardRecord, error) {
	if err := checkArm(armID, len(e.records)); err != nil {
		return RewardRecord{}, err
	}
	return e.records[armID], nil
}
