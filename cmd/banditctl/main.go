package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"banditlab/internal/logging"
	"banditlab/internal/storage"
	"banditlab/pkg/banditlab"
)

const (
	resultsDir = "results"
	exportsDir = "exports"
	dbPath     = "banditlab.db"
)

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "curve":
		return runCurve(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type clientFlags struct {
	storeKind  *string
	dbPath     *string
	resultsDir *string
	logLevel   *string
}

func registerClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind:  fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:     fs.String("db-path", dbPath, "sqlite database path"),
		resultsDir: fs.String("results-dir", resultsDir, "run artifacts directory"),
		logLevel:   fs.String("log-level", "info", "log level: debug|info|warn|error"),
	}
}

func (f clientFlags) open() (*banditlab.Client, *zap.Logger, error) {
	logger, err := logging.New(*f.logLevel)
	if err != nil {
		return nil, nil, err
	}
	client, err := banditlab.New(banditlab.Options{
		StoreKind:  *f.storeKind,
		DBPath:     *f.dbPath,
		ResultsDir: *f.resultsDir,
		ExportsDir: exportsDir,
		Logger:     logger,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return client, logger, nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "experiment file (YAML)")
	cf := registerClientFlags(fs)
	overrides := registerOverrideFlags(fs)
	metricsOut := fs.String("metrics-out", "", "write prometheus metrics to this textfile after the run")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("run requires --config")
	}

	exp, err := loadExperiment(*configPath, fs, overrides)
	if err != nil {
		return err
	}

	client, logger, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		_ = logger.Sync()
	}()

	summary, err := client.Run(ctx, exp)
	if err != nil {
		return err
	}
	if *metricsOut != "" {
		if err := client.Metrics().WriteTextfile(*metricsOut); err != nil {
			return err
		}
	}

	if *jsonOut {
		return writeJSON(summary)
	}
	fmt.Fprintf(stdout, "run completed run_id=%s trials=%d rounds=%d best=%s artifacts=%s\n",
		summary.RunID, summary.Trials, summary.Rounds, summary.BestAgent, summary.ArtifactsDir)
	for _, a := range summary.Agents {
		fmt.Fprintf(stdout, "agent=%s kind=%s mean_reward=%.4f final_regret=%.4f\n", a.Name, a.Kind, a.MeanReward, a.FinalRegret)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, logger, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		_ = logger.Sync()
	}()

	items, err := client.Runs(ctx, banditlab.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s bandit=%s arms=%d rounds=%d trials=%d seed=%d mode=%s agents=%s best=%s best_final_regret=%.4f\n",
			item.RunID, item.CreatedAtUTC, item.BanditKind, item.NumArms, item.Rounds, item.Trials, item.Seed,
			item.TrialMode, strings.Join(item.Agents, ","), item.BestAgent, item.BestFinalRegret)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from run index")
	jsonOut := fs.Bool("json", false, "emit the full run record as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, logger, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		_ = logger.Sync()
	}()

	record, err := client.Show(ctx, banditlab.ShowRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(record)
	}
	fmt.Fprintf(stdout, "run_id=%s created_at=%s bandit=%s arms=%d rounds=%d trials=%d seed=%d mode=%s\n",
		record.ID, record.CreatedAtUTC, record.BanditKind, record.NumArms, record.Rounds, record.Trials, record.Seed, record.TrialMode)
	for _, series := range record.Agents {
		finalRegret := 0.0
		if n := len(series.CumulativeRegret); n > 0 {
			finalRegret = series.CumulativeRegret[n-1]
		}
		fmt.Fprintf(stdout, "agent=%s kind=%s handle=%s final_regret=%.4f\n",
			series.Agent.Name, series.Agent.Kind, series.Agent.Handle, finalRegret)
	}
	return nil
}

func runCurve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("curve", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from run index")
	series := fs.String("series", banditlab.SeriesMeanReward, "series: mean_reward|cumulative_regret")
	start := fs.Int("start", 0, "first round to emit")
	step := fs.Int("step", 1, "emit every step-th round")
	jsonOut := fs.Bool("json", false, "emit curves as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, logger, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		_ = logger.Sync()
	}()

	curves, err := client.Curve(ctx, banditlab.CurveRequest{
		RunID:  *runID,
		Latest: *latest,
		Series: *series,
		Start:  *start,
		Step:   *step,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(curves)
	}
	fmt.Fprintln(stdout, "series,round,value")
	for _, curve := range curves {
		for _, p := range curve.Points {
			fmt.Fprintf(stdout, "%s,%d,%g\n", curve.Name, p.Round, p.Value)
		}
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, logger, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		_ = logger.Sync()
	}()

	exported, err := client.Export(ctx, banditlab.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("delete requires --run-id")
	}

	client, logger, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		_ = logger.Sync()
	}()

	if err := client.Delete(ctx, banditlab.DeleteRequest{RunID: *runID}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run deleted run_id=%s\n", *runID)
	return nil
}

func writeJSON(value any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: banditctl <run|runs|show|curve|export|delete> [flags]", msg)
}
