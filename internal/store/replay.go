package store

import (
	"context"
	"fmt"

	"github.com/roach88/simkernel/internal/trace"
)

// RunState is a stored run with its trace and an integrity check.
type RunState struct {
	Run     Run
	Events  []trace.Record
	Digest  string // Recomputed from Events
	Intact  bool   // Digest matches the digest stored on the run
	Missing int64  // EventCount minus stored events (crash indicator)
}

// GetRunState loads a run and its events and re-digests the stored trace.
//
// A run that was interrupted before FinishRun has status running and an
// empty stored digest; it is reported as not intact.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}

	digest := trace.Digest(events)
	return RunState{
		Run:     run,
		Events:  events,
		Digest:  digest,
		Intact:  run.Status != RunRunning && run.Digest == digest,
		Missing: run.EventCount - int64(len(events)),
	}, nil
}
