package storage

import (
	"path/filepath"

	"banditlab/internal/model"
)

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

func sampleRun(id, createdAt string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: NewVersionedRecord(),
		ID:              id,
		CreatedAtUTC:    createdAt,
		BanditKind:      "high_low",
		NumArms:         3,
		Rounds:          2,
		Trials:          4,
		Seed:            1,
		TrialMode:       "independent",
		MeanHighRewards: []float64{10, 10},
		Agents: []model.AgentSeries{{
			Agent:            model.AgentRef{Handle: model.NewAgentHandle("TS"), Name: "TS", Kind: "ts"},
			MeanRewards:      []float64{4, 8},
			CumulativeRegret: []float64{6, 8},
		}},
	}
}
