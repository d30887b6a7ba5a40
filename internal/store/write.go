package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/simkernel/internal/trace"
)

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one execution of a scenario.
type Run struct {
	ID            string
	Scenario      string
	TicksPerHour  float64
	Config        RunConfig
	Status        RunStatus
	FinalTick     int64
	EventCount    int64
	Digest        string
	EngineVersion string
}

// CreateRun inserts a run in the running state.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a duplicate ID is
// silently ignored.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	cfgJSON, err := marshalConfig(run.Config)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, scenario, ticks_per_hour, config, status, engine_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Scenario,
		run.TicksPerHour,
		cfgJSON,
		string(RunRunning),
		run.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, finalTick, eventCount int64, digest string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, final_tick = ?, event_count = ?, digest = ?
		WHERE id = ?
	`, string(status), finalTick, eventCount, digest, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: %w", &NotFoundError{Kind: "run", ID: id})
	}
	return nil
}

// WriteEvent appends one trace record to a run.
// Uses ON CONFLICT(run_id, seq) DO NOTHING so a retried write is a no-op.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, runID string, rec trace.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, added_tick, sched_tick, priority, kind, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		rec.Seq,
		rec.AddedTick,
		rec.SchedTick,
		rec.Priority,
		string(rec.Kind),
		rec.Description,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteEvents appends a batch of records in one transaction.
func (s *Store) WriteEvents(ctx context.Context, runID string, recs []trace.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(run_id, seq, added_tick, sched_tick, priority, kind, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, runID, rec.Seq, rec.AddedTick, rec.SchedTick, rec.Priority, string(rec.Kind), rec.Description); err != nil {
			return fmt.Errorf("write events: seq %d: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

// RunRecorder writes an EventManager's records into one run.
// It keeps an in-memory copy so the caller can digest the trace without
// reading it back.
//
// Thread-safety: safe for concurrent use.
type RunRecorder struct {
	store *Store
	runID string

	mu      sync.Mutex
	records []trace.Record
}

// NewRunRecorder returns a recorder bound to runID.
func (s *Store) NewRunRecorder(runID string) *RunRecorder {
	return &RunRecorder{store: s, runID: runID}
}

// RecordEvent implements engine.Recorder.
func (r *RunRecorder) RecordEvent(ctx context.Context, rec trace.Record) error {
	if err := r.store.WriteEvent(ctx, r.runID, rec); err != nil {
		return err
	}
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return nil
}

// Records returns a copy of everything recorded so far.
func (r *RunRecorder) Records() []trace.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]trace.Record, len(r.records))
	copy(out, r.records)
	return out
}

// RunID returns the run this recorder writes to.
func (r *RunRecorder) RunID() string {
	return r.runID
}
