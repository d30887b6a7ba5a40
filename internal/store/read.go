package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/simkernel/internal/trace"
)

// NotFoundError reports a lookup for a run that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound returns true if err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

const runColumns = `id, scenario, ticks_per_hour, config, status, final_tick, event_count, digest, engine_version`

// ReadRun returns a single run by ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, &NotFoundError{Kind: "run", ID: id}
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	return run, nil
}

// LatestRunFor returns the most recently created run of a scenario.
func (s *Store) LatestRunFor(ctx context.Context, scenario string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE scenario = ?
		ORDER BY rowid DESC
		LIMIT 1
	`, scenario)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, &NotFoundError{Kind: "scenario", ID: scenario}
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run in creation order.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns a run's trace ordered by seq.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]trace.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, added_tick, sched_tick, priority, kind, description
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []trace.Record{}
	for rows.Next() {
		var rec trace.Record
		var kind string
		if err := rows.Scan(&rec.Seq, &rec.AddedTick, &rec.SchedTick, &rec.Priority, &kind, &rec.Description); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Kind = trace.Kind(kind)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var cfgJSON, status string
	err := row.Scan(
		&run.ID,
		&run.Scenario,
		&run.TicksPerHour,
		&cfgJSON,
		&status,
		&run.FinalTick,
		&run.EventCount,
		&run.Digest,
		&run.EngineVersion,
	)
	if err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	run.Config, err = unmarshalConfig(cfgJSON)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}
