package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/harness"
	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run of the scenario
}

// ReplayResult holds the comparison between a stored run and a fresh one.
type ReplayResult struct {
	Scenario     string        `json:"scenario"`
	RunID        string        `json:"run_id"`
	StoredDigest string        `json:"stored_digest"`
	ReplayDigest string        `json:"replay_digest"`
	StoredEvents int           `json:"stored_events"`
	ReplayEvents int           `json:"replay_events"`
	Intact       bool          `json:"intact"`
	Match        bool          `json:"match"`
	Divergence   int           `json:"divergence"` // -1 when the logs agree
	Stored       *trace.Record `json:"stored,omitempty"`
	Replayed     *trace.Record `json:"replayed,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario>",
		Short: "Re-run a scenario and verify it matches a stored run",
		Long: `Re-run a scenario with the configuration of a stored run and compare
the event log digests.

By default the latest stored run of the scenario is used. On divergence
the first differing event of each log is reported.

Exit codes:
  0 - Replay matches the stored run
  1 - Replay diverged
  2 - Command error (database not found, no stored run, etc.)

Examples:
  simkernel replay --db ./runs.db ordering.yaml
  simkernel replay --db ./runs.db ordering.yaml --run 0190c6a2-...
  simkernel replay --db ./runs.db ordering.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay against a specific run")

	return cmd
}

func runReplay(opts *ReplayOptions, file string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	_, logger, err := opts.loadEnvironment(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	sc, err := harness.LoadScenario(file)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", file), err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := selectRun(ctx, st, sc.Name, opts.RunID)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Replaying %s against run %s", sc.Name, run.ID)

	state, err := st.GetRunState(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load stored run", err)
	}
	if !state.Intact {
		logger.Warn("stored run is not intact",
			"run_id", run.ID,
			"status", run.Status,
			"missing_events", state.Missing,
		)
	}

	replayed, runErr := harness.Run(ctx, sc, harness.Options{
		Logger:       logger,
		TicksPerHour: run.TicksPerHour,
		PoolSoftMax:  run.Config.PoolSoftMax,
		MaxEvents:    run.Config.MaxEvents,
	})
	if replayed == nil {
		return WrapExitError(ExitCommandError, "replay failed to start", runErr)
	}
	if runErr != nil {
		// A stored run that hit its budget replays into the same error.
		logger.Debug("replay stopped early", "error", runErr)
	}

	result := compareRuns(sc.Name, state, replayed)

	if formatter.IsJSON() {
		var failure *CLIError
		if !result.Match {
			failure = &CLIError{Code: CodeDivergence, Message: "replay diverged from stored run"}
		}
		if err := formatter.Report(result, failure); err != nil {
			return err
		}
	} else {
		outputReplayText(cmd, result, opts.Verbose)
	}

	if !result.Match {
		return NewExitError(ExitFailure, "replay diverged from stored run")
	}
	return nil
}

// selectRun resolves the run to compare against.
func selectRun(ctx context.Context, st *store.Store, scenario, runID string) (store.Run, error) {
	if runID == "" {
		run, err := st.LatestRunFor(ctx, scenario)
		if store.IsNotFound(err) {
			return store.Run{}, NewExitError(ExitCommandError, fmt.Sprintf("no stored run for scenario %s", scenario))
		}
		if err != nil {
			return store.Run{}, WrapExitError(ExitCommandError, "failed to find stored run", err)
		}
		return run, nil
	}

	run, err := st.ReadRun(ctx, runID)
	if store.IsNotFound(err) {
		return store.Run{}, NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return store.Run{}, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	if run.Scenario != scenario {
		return store.Run{}, NewExitError(ExitCommandError,
			fmt.Sprintf("run %s belongs to scenario %s, not %s", runID, run.Scenario, scenario))
	}
	return run, nil
}

// compareRuns diffs a fresh result against stored state. An unfinished
// stored run has no digest of its own, so the recomputed one stands in.
func compareRuns(scenario string, state store.RunState, replayed *harness.Result) ReplayResult {
	stored := state.Run.Digest
	if stored == "" {
		stored = state.Digest
	}

	result := ReplayResult{
		Scenario:     scenario,
		RunID:        state.Run.ID,
		StoredDigest: stored,
		ReplayDigest: replayed.Digest,
		StoredEvents: len(state.Events),
		ReplayEvents: len(replayed.Records),
		Intact:       state.Intact,
		Match:        stored == replayed.Digest,
		Divergence:   trace.FirstDivergence(state.Events, replayed.Records),
	}
	if i := result.Divergence; i >= 0 {
		if i < len(state.Events) {
			result.Stored = &state.Events[i]
		}
		if i < len(replayed.Records) {
			result.Replayed = &replayed.Records[i]
		}
	}
	return result
}

func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay: %s against run %s\n", result.Scenario, result.RunID)
	fmt.Fprintf(w, "  Events: %d stored, %d replayed\n", result.StoredEvents, result.ReplayEvents)
	if verbose || !result.Match {
		fmt.Fprintf(w, "  Stored digest: %s\n", result.StoredDigest)
		fmt.Fprintf(w, "  Replay digest: %s\n", result.ReplayDigest)
	}
	if !result.Intact {
		fmt.Fprintln(w, "  Warning: stored run is incomplete or altered")
	}

	if result.Match {
		fmt.Fprintln(w, "✓ Replay matches stored run")
		return
	}

	fmt.Fprintln(w, "✗ Replay diverged")
	if result.Divergence >= 0 {
		fmt.Fprintf(w, "  First divergence at event %d\n", result.Divergence)
		fmt.Fprintf(w, "    stored:   %s\n", describeRecord(result.Stored))
		fmt.Fprintf(w, "    replayed: %s\n", describeRecord(result.Replayed))
	}
}

func describeRecord(rec *trace.Record) string {
	if rec == nil {
		return "(none)"
	}
	return fmt.Sprintf("seq=%d tick=%d prio=%d %s %q", rec.Seq, rec.SchedTick, rec.Priority, rec.Kind, rec.Description)
}
