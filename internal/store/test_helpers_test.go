package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/simkernel/internal/trace"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun inserts a run with minimal required fields.
func createTestRun(t *testing.T, s *Store, id, scenario string) Run {
	t.Helper()
	run := Run{
		ID:            id,
		Scenario:      scenario,
		TicksPerHour:  3600,
		Config:        RunConfig{PoolSoftMax: 4},
		EngineVersion: "0.1.0",
	}
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	return run
}

func testRecords() []trace.Record {
	return []trace.Record{
		{Seq: 1, AddedTick: 0, SchedTick: 5, Priority: 5, Kind: trace.KindDispatch, Description: "C"},
		{Seq: 2, AddedTick: 0, SchedTick: 10, Priority: 0, Kind: trace.KindDispatch, Description: "B"},
		{Seq: 3, AddedTick: 5, SchedTick: 10, Priority: 1, Kind: trace.KindResume, Description: "resume <A & co>"},
	}
}
