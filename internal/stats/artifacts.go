package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

const (
	runIndexFile           = "run_index.json"
	configFile             = "config.json"
	summaryFile            = "summary.json"
	meanRewardsFile        = "mean_rewards.csv"
	cumulativeRegretFile   = "cumulative_regret.csv"
	defaultArtifactPerm    = 0o644
	defaultArtifactDirPerm = 0o755
)

var artifactFiles = []string{configFile, summaryFile, meanRewardsFile, cumulativeRegretFile}

type AgentConfig struct {
	Name              string  `json:"name"`
	Kind              string  `json:"kind"`
	WinLen            int     `json:"win_len,omitempty"`
	TailMassThreshold float64 `json:"tail_mass_threshold,omitempty"`
}

type RunConfig struct {
	RunID           string        `json:"run_id"`
	BanditKind      string        `json:"bandit_kind"`
	NumArms         int           `json:"num_arms"`
	NumHighReward   int           `json:"num_high_reward"`
	NumMediumReward int           `json:"num_medium_reward"`
	NumLowReward    int           `json:"num_low_reward"`
	Arms            []string      `json:"arms"`
	Rounds          int           `json:"rounds"`
	Trials          int           `json:"trials"`
	Seed            uint64        `json:"seed"`
	TrialMode       string        `json:"trial_mode"`
	Workers         int           `json:"workers,omitempty"`
	Agents          []AgentConfig `json:"agents"`
}

type AgentSummary struct {
	Name        string  `json:"name"`
	Handle      string  `json:"handle"`
	Kind        string  `json:"kind"`
	MeanReward  float64 `json:"mean_reward"`
	FinalRegret float64 `json:"final_regret"`
}

type RunSummary struct {
	RunID          string         `json:"run_id"`
	Trials         int            `json:"trials"`
	Rounds         int            `json:"rounds"`
	MeanHighReward float64        `json:"mean_high_reward"`
	Agents         []AgentSummary `json:"agents"`
	BestAgent      string         `json:"best_agent"`
}

type RunArtifacts struct {
	Config RunConfig
	Result *MeanSimResult
}

type RunIndexEntry struct {
	RunID           string   `json:"run_id"`
	BanditKind      string   `json:"bandit_kind"`
	NumArms         int      `json:"num_arms"`
	Rounds          int      `json:"rounds"`
	Trials          int      `json:"trials"`
	Seed            uint64   `json:"seed"`
	TrialMode       string   `json:"trial_mode"`
	Agents          []string `json:"agents"`
	BestAgent       string   `json:"best_agent"`
	BestFinalRegret float64  `json:"best_final_regret"`
	CreatedAtUTC    string   `json:"created_at_utc"`
}

// Summarize reduces a run to per-agent averages. The best agent is the one
// with the lowest final cumulative regret; earlier agents win ties.
func Summarize(runID string, result *MeanSimResult) RunSummary {
	summary := RunSummary{
		RunID:  runID,
		Trials: result.Trials,
		Rounds: result.Rounds,
		Agents: make([]AgentSummary, 0, len(result.Agents)),
	}
	if len(result.MeanHighRewards) > 0 {
		summary.MeanHighReward = stat.Mean(result.MeanHighRewards, nil)
	}
	bestRegret := 0.0
	for i, series := range result.Agents {
		entry := AgentSummary{
			Name:        series.Agent.Name,
			Handle:      string(series.Agent.Handle),
			Kind:        series.Agent.Kind,
			FinalRegret: FinalRegret(series),
		}
		if len(series.MeanRewards) > 0 {
			entry.MeanReward = stat.Mean(series.MeanRewards, nil)
		}
		if i == 0 || entry.FinalRegret < bestRegret {
			bestRegret = entry.FinalRegret
			summary.BestAgent = entry.Name
		}
		summary.Agents = append(summary.Agents, entry)
	}
	return summary
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if artifacts.Result == nil {
		return "", ErrNoTrials
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, defaultArtifactDirPerm); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), Summarize(artifacts.Config.RunID, artifacts.Result)); err != nil {
		return "", err
	}

	result := artifacts.Result
	header := []string{"round", "oracle"}
	rewards := [][]float64{result.MeanHighRewards}
	regrets := make([][]float64, 0, len(result.Agents))
	for _, series := range result.Agents {
		header = append(header, series.Agent.Name)
		rewards = append(rewards, series.MeanRewards)
		regrets = append(regrets, series.CumulativeRegret)
	}
	if err := writeSeriesCSV(filepath.Join(runDir, meanRewardsFile), header, rewards); err != nil {
		return "", err
	}
	regretHeader := append([]string{"round"}, header[2:]...)
	if err := writeSeriesCSV(filepath.Join(runDir, cumulativeRegretFile), regretHeader, regrets); err != nil {
		return "", err
	}

	return runDir, nil
}

// writeSeriesCSV writes one row per round; columns must share a length.
func writeSeriesCSV(path string, header []string, columns [][]float64) error {
	rounds := 0
	if len(columns) > 0 {
		rounds = len(columns[0])
	}
	for i, column := range columns {
		if len(column) != rounds {
			return fmt.Errorf("%w: column %s has %d rows, expected %d", ErrLengthMismatch, header[i+1], len(column), rounds)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	row := make([]string, len(columns)+1)
	for round := 0; round < rounds; round++ {
		row[0] = strconv.Itoa(round)
		for i, column := range columns {
			row[i+1] = strconv.FormatFloat(column[round], 'f', -1, 64)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadSeriesCSV reads a series file written by WriteRunArtifacts and returns
// its column names (without the round column) and values.
func ReadSeriesCSV(path string) ([]string, [][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, fmt.Errorf("series file %s is empty", path)
		}
		return nil, nil, err
	}
	if len(header) < 2 || header[0] != "round" {
		return nil, nil, fmt.Errorf("series header must start with round and have at least 2 columns")
	}

	names := header[1:]
	columns := make([][]float64, len(names))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		for i := range names {
			value, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, nil, err
			}
			columns[i] = append(columns[i], value)
		}
	}
	return names, columns, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, defaultArtifactDirPerm); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends first for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// DeleteRunArtifacts removes a run's artifact directory and its index entry.
// It reports whether either existed.
func DeleteRunArtifacts(baseDir, runID string) (bool, error) {
	if runID == "" || runID == "." || runID == ".." || filepath.Base(runID) != runID {
		return false, fmt.Errorf("invalid run id: %q", runID)
	}

	runDir := filepath.Join(baseDir, runID)
	_, statErr := os.Stat(runDir)
	dirExists := statErr == nil
	if statErr != nil && !os.IsNotExist(statErr) {
		return false, statErr
	}
	if dirExists {
		if err := os.RemoveAll(runDir); err != nil {
			return false, err
		}
	}

	// Keep the file order so equal timestamps still sort by append order.
	var index []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &index)
	if err != nil || !ok {
		return dirExists, err
	}
	kept := index[:0]
	for _, entry := range index {
		if entry.RunID != runID {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(index) {
		return dirExists, nil
	}
	if err := writeJSON(filepath.Join(baseDir, runIndexFile), kept); err != nil {
		return true, err
	}
	return true, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, defaultArtifactDirPerm); err != nil {
		return "", err
	}
	for _, file := range artifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, strings.TrimSpace(runID), configFile), &cfg)
	return cfg, ok, err
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	var summary RunSummary
	ok, err := readJSON(filepath.Join(baseDir, strings.TrimSpace(runID), summaryFile), &summary)
	return summary, ok, err
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, defaultArtifactPerm)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
