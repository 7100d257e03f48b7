// Package banditlab is the public entry point for running bandit experiments
// and browsing their results.
package banditlab

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"banditlab/internal/logging"
	"banditlab/internal/metrics"
	"banditlab/internal/model"
	"banditlab/internal/sim"
	"banditlab/internal/stats"
	"banditlab/internal/storage"
)

const (
	defaultResultsDir = "results"
	defaultExportsDir = "exports"
	defaultDBPath     = "banditlab.db"

	SeriesMeanReward       = "mean_reward"
	SeriesCumulativeRegret = "cumulative_regret"
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind  string
	DBPath     string
	ResultsDir string
	ExportsDir string
	Logger     *zap.Logger
	// Metrics is optional; when nil the client creates its own collector.
	Metrics *metrics.Collector
}

type Client struct {
	store storage.Store

	initOnce sync.Once
	initErr  error

	resultsDir string
	exportsDir string
	logger     *zap.Logger
	metrics    *metrics.Collector
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Trials       int
	Rounds       int
	BestAgent    string
	Agents       []stats.AgentSummary
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID           string
	CreatedAtUTC    string
	BanditKind      string
	NumArms         int
	Rounds          int
	Trials          int
	Seed            uint64
	TrialMode       string
	Agents          []string
	BestAgent       string
	BestFinalRegret float64
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

type DeleteRequest struct {
	RunID string
}

type CurveRequest struct {
	RunID  string
	Latest bool
	Series string
	Start  int
	Step   int
}

type CurveSeries struct {
	Name   string
	Points []stats.CurvePoint
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	resultsDir := opts.ResultsDir
	if resultsDir == "" {
		resultsDir = defaultResultsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	logger := logging.OrNop(opts.Logger)
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewCollector(metrics.DefaultNamespace, logger)
	}
	return &Client{
		store:      store,
		resultsDir: resultsDir,
		exportsDir: exportsDir,
		logger:     logger.With(zap.String("component", "banditlab")),
		metrics:    collector,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Metrics() *metrics.Collector {
	return c.metrics
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Run executes exp, persists the aggregated result and writes its artifacts.
func (c *Client) Run(ctx context.Context, exp Experiment) (RunSummary, error) {
	if err := exp.Validate(); err != nil {
		return RunSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	runID := uuid.NewString()
	now := time.Now().UTC()
	logger := c.logger.With(zap.String("run_id", runID))
	logger.Info("run started",
		zap.String("bandit", exp.Bandit.Kind),
		zap.Int("agents", len(exp.Agents)),
		zap.Int("rounds", exp.Rounds),
		zap.Int("trials", exp.Trials),
		zap.String("mode", exp.mode()),
		zap.Uint64("seed", exp.Seed),
	)

	b := builder{exp: exp, logger: logger, metrics: c.metrics}
	runner := sim.NewRunner(sim.Config{Logger: logger, Metrics: c.metrics})

	var (
		result *stats.MeanSimResult
		arms   []string
		err    error
	)
	switch exp.mode() {
	case ModeIndependent:
		result, err = runner.RunIndependent(ctx, b.trial, exp.Rounds, exp.Trials, exp.Workers)
	default:
		env, agents, buildErr := b.trial(0)
		if buildErr != nil {
			return RunSummary{}, buildErr
		}
		arms = env.ArmNames()
		result, err = runner.Run(ctx, env, agents, exp.Rounds, exp.Trials)
	}
	if err != nil {
		return RunSummary{}, err
	}
	if arms == nil {
		env, buildErr := b.bandit(0)
		if buildErr != nil {
			return RunSummary{}, buildErr
		}
		arms = env.ArmNames()
	}

	record := model.RunRecord{
		VersionedRecord: storage.NewVersionedRecord(),
		ID:              runID,
		CreatedAtUTC:    now.Format(time.RFC3339Nano),
		BanditKind:      strings.ToLower(exp.Bandit.Kind),
		NumArms:         exp.Bandit.NumArms,
		Rounds:          result.Rounds,
		Trials:          result.Trials,
		Seed:            exp.Seed,
		TrialMode:       exp.mode(),
		MeanHighRewards: result.MeanHighRewards,
		Agents:          result.Agents,
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.resultsDir, stats.RunArtifacts{
		Config: runConfig(runID, exp, arms),
		Result: result,
	})
	if err != nil {
		return RunSummary{}, err
	}
	summary := stats.Summarize(runID, result)

	agentNames := make([]string, 0, len(exp.Agents))
	for _, a := range exp.Agents {
		agentNames = append(agentNames, a.Name)
	}
	bestRegret := 0.0
	for _, a := range summary.Agents {
		if a.Name == summary.BestAgent {
			bestRegret = a.FinalRegret
		}
	}
	if err := stats.AppendRunIndex(c.resultsDir, stats.RunIndexEntry{
		RunID:           runID,
		BanditKind:      record.BanditKind,
		NumArms:         record.NumArms,
		Rounds:          record.Rounds,
		Trials:          record.Trials,
		Seed:            record.Seed,
		TrialMode:       record.TrialMode,
		Agents:          agentNames,
		BestAgent:       summary.BestAgent,
		BestFinalRegret: bestRegret,
		CreatedAtUTC:    record.CreatedAtUTC,
	}); err != nil {
		return RunSummary{}, err
	}

	logger.Info("run persisted",
		zap.String("artifacts", runDir),
		zap.String("best_agent", summary.BestAgent),
		zap.Float64("best_final_regret", bestRegret),
	)
	return RunSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		Trials:       result.Trials,
		Rounds:       result.Rounds,
		BestAgent:    summary.BestAgent,
		Agents:       summary.Agents,
	}, nil
}

func runConfig(runID string, exp Experiment, arms []string) stats.RunConfig {
	agents := make([]stats.AgentConfig, 0, len(exp.Agents))
	for _, a := range exp.Agents {
		cfg := stats.AgentConfig{Name: a.Name, Kind: strings.ToLower(a.Kind), WinLen: a.WinLen}
		if a.TailMassThreshold != nil {
			cfg.TailMassThreshold = *a.TailMassThreshold
		}
		agents = append(agents, cfg)
	}
	return stats.RunConfig{
		RunID:           runID,
		BanditKind:      strings.ToLower(exp.Bandit.Kind),
		NumArms:         exp.Bandit.NumArms,
		NumHighReward:   exp.Bandit.NumHighReward,
		NumMediumReward: exp.Bandit.NumMediumReward,
		NumLowReward:    exp.Bandit.NumLowReward,
		Arms:            arms,
		Rounds:          exp.Rounds,
		Trials:          exp.Trials,
		Seed:            exp.Seed,
		TrialMode:       exp.mode(),
		Workers:         exp.Workers,
		Agents:          agents,
	}
}

// Runs lists runs from the artifact index, newest first. Without an index it
// lists the runs the store holds.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.resultsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return c.storedRuns(ctx, req.Limit)
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:           e.RunID,
			CreatedAtUTC:    e.CreatedAtUTC,
			BanditKind:      e.BanditKind,
			NumArms:         e.NumArms,
			Rounds:          e.Rounds,
			Trials:          e.Trials,
			Seed:            e.Seed,
			TrialMode:       e.TrialMode,
			Agents:          append([]string(nil), e.Agents...),
			BestAgent:       e.BestAgent,
			BestFinalRegret: e.BestFinalRegret,
		})
	}
	return out, nil
}

func (c *Client) storedRuns(ctx context.Context, limit int) ([]RunItem, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	records, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}

	out := make([]RunItem, 0, len(records))
	for _, record := range records {
		item := RunItem{
			RunID:        record.ID,
			CreatedAtUTC: record.CreatedAtUTC,
			BanditKind:   record.BanditKind,
			NumArms:      record.NumArms,
			Rounds:       record.Rounds,
			Trials:       record.Trials,
			Seed:         record.Seed,
			TrialMode:    record.TrialMode,
			Agents:       make([]string, 0, len(record.Agents)),
		}
		for i, series := range record.Agents {
			item.Agents = append(item.Agents, series.Agent.Name)
			regret := stats.FinalRegret(series)
			if i == 0 || regret < item.BestFinalRegret {
				item.BestAgent = series.Agent.Name
				item.BestFinalRegret = regret
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// Delete removes a run from the store together with its artifacts and index
// entry. It fails with ErrRunNotFound when neither holds the run.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) error {
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		return errors.New("run id is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return err
	}

	_, stored, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if stored {
		if err := c.store.DeleteRun(ctx, runID); err != nil {
			return err
		}
	}
	hadArtifacts, err := stats.DeleteRunArtifacts(c.resultsDir, runID)
	if err != nil {
		return err
	}
	if !stored && !hadArtifacts {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	c.logger.Info("run deleted", zap.String("run_id", runID), zap.Bool("stored", stored), zap.Bool("artifacts", hadArtifacts))
	return nil
}

// Show loads a run from the store, falling back to its artifacts when the
// store does not hold it (an in-memory store only knows this process's runs).
func (c *Client) Show(ctx context.Context, req ShowRequest) (model.RunRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return model.RunRecord{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.RunRecord{}, err
	}

	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		return record, nil
	}
	return c.loadArtifacts(runID)
}

func (c *Client) Curve(ctx context.Context, req CurveRequest) ([]CurveSeries, error) {
	record, err := c.Show(ctx, ShowRequest{RunID: req.RunID, Latest: req.Latest})
	if err != nil {
		return nil, err
	}

	switch req.Series {
	case "", SeriesMeanReward:
		out := []CurveSeries{{Name: "oracle", Points: stats.BuildCurve(record.MeanHighRewards, req.Start, req.Step)}}
		for _, series := range record.Agents {
			out = append(out, CurveSeries{Name: series.Agent.Name, Points: stats.BuildCurve(series.MeanRewards, req.Start, req.Step)})
		}
		return out, nil
	case SeriesCumulativeRegret:
		out := make([]CurveSeries, 0, len(record.Agents))
		for _, series := range record.Agents {
			out = append(out, CurveSeries{Name: series.Agent.Name, Points: stats.BuildCurve(series.CumulativeRegret, req.Start, req.Step)})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported series: %s", req.Series)
	}
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.resultsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if runID != "" {
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.resultsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) loadArtifacts(runID string) (model.RunRecord, error) {
	cfg, ok, err := stats.ReadRunConfig(c.resultsDir, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	runDir := filepath.Join(c.resultsDir, runID)
	rewardNames, rewards, err := stats.ReadSeriesCSV(filepath.Join(runDir, "mean_rewards.csv"))
	if err != nil {
		return model.RunRecord{}, err
	}
	regretNames, regrets, err := stats.ReadSeriesCSV(filepath.Join(runDir, "cumulative_regret.csv"))
	if err != nil {
		return model.RunRecord{}, err
	}
	if len(rewardNames) != len(cfg.Agents)+1 || len(regretNames) != len(cfg.Agents) {
		return model.RunRecord{}, fmt.Errorf("run %s artifacts do not match its agent lineup", runID)
	}

	record := model.RunRecord{
		VersionedRecord: storage.NewVersionedRecord(),
		ID:              cfg.RunID,
		BanditKind:      cfg.BanditKind,
		NumArms:         cfg.NumArms,
		Rounds:          cfg.Rounds,
		Trials:          cfg.Trials,
		Seed:            cfg.Seed,
		TrialMode:       cfg.TrialMode,
		MeanHighRewards: rewards[0],
		Agents:          make([]model.AgentSeries, 0, len(cfg.Agents)),
	}
	for i, a := range cfg.Agents {
		record.Agents = append(record.Agents, model.AgentSeries{
			Agent:            model.AgentRef{Handle: model.NewAgentHandle(a.Name), Name: a.Name, Kind: a.Kind},
			MeanRewards:      rewards[i+1],
			CumulativeRegret: regrets[i],
		})
	}
	if entries, err := stats.ListRunIndex(c.resultsDir); err == nil {
		for _, e := range entries {
			if e.RunID == runID {
				record.CreatedAtUTC = e.CreatedAtUTC
				break
			}
		}
	}
	return record, nil
}
