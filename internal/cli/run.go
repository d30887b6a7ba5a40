package cli

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/simkernel/internal/config"
	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/harness"
	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// RunIDs overrides the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name      string   `json:"name"`
	File      string   `json:"file"`
	RunID     string   `json:"run_id,omitempty"`
	Pass      bool     `json:"pass"`
	FinalTick int64    `json:"final_tick"`
	Events    int      `json:"events"`
	Digest    string   `json:"digest"`
	Errors    []string `json:"errors,omitempty"`
}

// RunResult holds the overall run result.
type RunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(rootOpts, nil)
}

func newRunCommand(rootOpts *RootOptions, ids engine.RunIDGenerator) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts, RunIDs: ids}

	cmd := &cobra.Command{
		Use:   "run <scenario>...",
		Short: "Run scenarios and check their expectations",
		Long: `Run one or more scenarios, each on its own event manager.

Arguments may be scenario files or directories containing .yaml, .yml
or .cue scenarios. Scenarios run concurrently. When --db is set (or
trace_db is configured) every run and its event log is stored for
later replay.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, database errors, etc.)

Examples:
  simkernel run ./scenarios
  simkernel run --db ./runs.db ordering.yaml spawn.yaml
  simkernel run ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for storing runs")

	return cmd
}

func runScenarios(opts *RunOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := opts.loadEnvironment(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	files, err := expandScenarioPaths(args)
	if err != nil {
		return err
	}
	scenarios, err := loadScenarios(files)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded %d scenario(s)", len(scenarios))

	tracer, shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.TraceDB
	}
	var st *store.Store
	if dbPath != "" {
		st, err = store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	ids := opts.RunIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}

	runner := &scenarioRunner{
		cfg:    cfg,
		logger: logger,
		store:  st,
		ids:    ids,
		opts:   harness.Options{Logger: logger, Tracer: tracer},
	}

	results := make([]ScenarioResult, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			res, err := runner.run(gctx, sc)
			if err != nil {
				return err
			}
			res.File = files[i]
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "run aborted", err)
	}

	summary := RunResult{Scenarios: results, Total: len(results)}
	for _, res := range results {
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if formatter.IsJSON() {
		return outputRunJSON(formatter, summary)
	}
	return outputRunText(cmd, summary, opts.Verbose)
}

// scenarioRunner executes scenarios and optionally stores each run.
// Safe for concurrent use: every run gets its own manager and recorder.
type scenarioRunner struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	ids    engine.RunIDGenerator
	opts   harness.Options
}

// run executes one scenario. Scenario failures (expectations, budget) are
// reported in the result; only storage errors are returned.
func (r *scenarioRunner) run(ctx context.Context, sc *harness.Scenario) (ScenarioResult, error) {
	opts := r.opts
	opts.TicksPerHour = r.cfg.TicksPerHour
	opts.PoolSoftMax = r.cfg.PoolSoftMax
	opts.MaxEvents = r.cfg.MaxEvents

	var runID string
	if r.store != nil {
		runID = r.ids.Generate()
		run := store.Run{
			ID:            runID,
			Scenario:      sc.Name,
			TicksPerHour:  effectiveTicksPerHour(sc, opts),
			Config:        store.RunConfig{PoolSoftMax: opts.PoolSoftMax, MaxEvents: effectiveMaxEvents(sc, opts)},
			EngineVersion: engine.Version,
		}
		if err := r.store.CreateRun(ctx, run); err != nil {
			return ScenarioResult{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		opts.Recorder = r.store.NewRunRecorder(runID)
	}

	r.logger.Debug("running scenario", "scenario", sc.Name, "run_id", runID)
	result, runErr := harness.Run(ctx, sc, opts)
	if result == nil {
		result = harness.NewResult(sc.Name)
		result.AddError(runErr.Error())
	}

	if r.store != nil {
		status := store.RunCompleted
		if runErr != nil {
			status = store.RunFailed
		}
		err := r.store.FinishRun(context.WithoutCancel(ctx), runID, status,
			result.FinalTick, int64(len(result.Records)), result.Digest)
		if err != nil {
			return ScenarioResult{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}

	r.logger.Info("scenario finished",
		"scenario", sc.Name,
		"pass", result.Pass,
		"final_tick", result.FinalTick,
		"events", len(result.Records),
	)

	return ScenarioResult{
		Name:      sc.Name,
		RunID:     runID,
		Pass:      result.Pass,
		FinalTick: result.FinalTick,
		Events:    len(result.Records),
		Digest:    result.Digest,
		Errors:    result.Errors,
	}, nil
}

// effectiveTicksPerHour mirrors the harness rule: the scenario wins over
// the runner default.
func effectiveTicksPerHour(sc *harness.Scenario, opts harness.Options) float64 {
	if sc.TicksPerHour > 0 {
		return sc.TicksPerHour
	}
	if opts.TicksPerHour > 0 {
		return opts.TicksPerHour
	}
	return engine.DefaultTicksPerHour
}

func effectiveMaxEvents(sc *harness.Scenario, opts harness.Options) int {
	if sc.MaxEvents > 0 {
		return sc.MaxEvents
	}
	return opts.MaxEvents
}

func outputRunJSON(formatter *OutputFormatter, result RunResult) error {
	var failure *CLIError
	if result.Failed > 0 {
		failure = &CLIError{
			Code:    CodeScenarioFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := formatter.Report(result, failure); err != nil {
		return err
	}
	if failure != nil {
		return NewExitError(ExitFailure, failure.Message)
	}
	return nil
}

func outputRunText(cmd *cobra.Command, result RunResult, verbose bool) error {
	w := cmd.OutOrStdout()

	for _, sc := range result.Scenarios {
		status := "✓"
		if !sc.Pass {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s (final tick %d, %d events)\n", status, sc.Name, sc.FinalTick, sc.Events)
		if verbose {
			if sc.RunID != "" {
				fmt.Fprintf(w, "  Run: %s\n", sc.RunID)
			}
			fmt.Fprintf(w, "  Digest: %s\n", sc.Digest)
		}
		for _, e := range sc.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
