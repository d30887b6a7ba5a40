package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Kind     string // optional - filter to one record kind
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID            string  `json:"id"`
	Scenario      string  `json:"scenario"`
	Status        string  `json:"status"`
	TicksPerHour  float64 `json:"ticks_per_hour"`
	FinalTick     int64   `json:"final_tick"`
	EventCount    int64   `json:"event_count"`
	Digest        string  `json:"digest,omitempty"`
	EngineVersion string  `json:"engine_version,omitempty"`
}

// TraceResult holds one run's event log.
type TraceResult struct {
	Run      RunSummary     `json:"run"`
	Timeline []trace.Record `json:"timeline"`
	Stats    TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int   `json:"total_events"`
	Dispatches  int   `json:"dispatches"`
	Resumes     int   `json:"resumes"`
	Conditions  int   `json:"conditions"`
	Missing     int64 `json:"missing"`
	Intact      bool  `json:"intact"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show stored runs and their event logs",
		Long: `Show the event log of a stored run.

Without --run, lists every stored run. With --run, prints the run's
events in dispatch order: sequence, scheduled tick, priority, the tick
the event was added, kind and description.

Examples:
  simkernel trace --db ./runs.db
  simkernel trace --db ./runs.db --run 0190c6a2-...
  simkernel trace --db ./runs.db --run 0190c6a2-... --kind resume
  simkernel trace --db ./runs.db --run 0190c6a2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one kind (dispatch|resume|condition)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	kind := trace.Kind(opts.Kind)
	switch kind {
	case "", trace.KindDispatch, trace.KindResume, trace.KindCondition:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q", opts.Kind))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, st, formatter, cmd)
	}

	state, err := st.GetRunState(ctx, opts.RunID)
	if store.IsNotFound(err) {
		if formatter.IsJSON() {
			_ = formatter.Error(CodeNotFound, "run not found", map[string]string{"run_id": opts.RunID})
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	result := TraceResult{
		Run:      summarizeRun(state.Run),
		Timeline: filterRecords(state.Events, kind),
		Stats: TraceStats{
			TotalEvents: len(state.Events),
			Missing:     state.Missing,
			Intact:      state.Intact,
		},
	}
	for _, rec := range state.Events {
		switch rec.Kind {
		case trace.KindDispatch:
			result.Stats.Dispatches++
		case trace.KindResume:
			result.Stats.Resumes++
		case trace.KindCondition:
			result.Stats.Conditions++
		}
	}

	if formatter.IsJSON() {
		return formatter.Report(result, nil)
	}
	outputTraceText(cmd, result, opts.Verbose)
	return nil
}

func listRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, summarizeRun(run))
	}

	if formatter.IsJSON() {
		return formatter.Report(summaries, nil)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, run := range summaries {
		fmt.Fprintf(w, "%s  %-20s %-9s final_tick=%d events=%d\n",
			run.ID, run.Scenario, run.Status, run.FinalTick, run.EventCount)
	}
	return nil
}

func summarizeRun(run store.Run) RunSummary {
	return RunSummary{
		ID:            run.ID,
		Scenario:      run.Scenario,
		Status:        string(run.Status),
		TicksPerHour:  run.TicksPerHour,
		FinalTick:     run.FinalTick,
		EventCount:    run.EventCount,
		Digest:        run.Digest,
		EngineVersion: run.EngineVersion,
	}
}

// filterRecords keeps records of the given kind; an empty kind keeps all.
func filterRecords(records []trace.Record, kind trace.Kind) []trace.Record {
	out := make([]trace.Record, 0, len(records))
	for _, rec := range records {
		if kind == "" || rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Run: %s (%s, %s)\n", result.Run.ID, result.Run.Scenario, result.Run.Status)
	if verbose {
		fmt.Fprintf(w, "  Ticks per hour: %g\n", result.Run.TicksPerHour)
		fmt.Fprintf(w, "  Engine version: %s\n", result.Run.EngineVersion)
		fmt.Fprintf(w, "  Digest: %s\n", result.Run.Digest)
	}
	fmt.Fprintln(w)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No events.")
	}
	for _, rec := range result.Timeline {
		fmt.Fprintf(w, "%4d  t=%-8d p=%-3d +%-8d %-9s %s\n",
			rec.Seq, rec.SchedTick, rec.Priority, rec.AddedTick, rec.Kind, rec.Description)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Events: %d (%d dispatch, %d resume, %d condition)\n",
		result.Stats.TotalEvents, result.Stats.Dispatches, result.Stats.Resumes, result.Stats.Conditions)
	if !result.Stats.Intact {
		fmt.Fprintf(w, "Warning: run is incomplete or altered (%d event(s) missing)\n", result.Stats.Missing)
	}
}
