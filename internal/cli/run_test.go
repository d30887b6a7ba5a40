package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/store"
)

func TestRun_PassingScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pingpong.yaml", pingpongScenario)

	out, err := execute(t, "run", path)

	require.NoError(t, err)
	assert.Contains(t, out, "✓ pingpong (final tick 5, 4 events)")
	assert.Contains(t, out, "Run Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestRun_FailingScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "failing.yaml", failingScenario)

	out, err := execute(t, "run", path)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "final tick 7")
}

func TestRun_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pingpong.yaml", pingpongScenario)
	writeFile(t, dir, "failing.yaml", failingScenario)
	writeFile(t, dir, "README.txt", "not a scenario")

	out, err := execute(t, "--format", "json", "run", dir)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse[RunResult](t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeScenarioFailed, resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)

	// Results keep argument order even though scenarios run concurrently.
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "failing", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "pingpong", resp.Data.Scenarios[1].Name)
	assert.Len(t, resp.Data.Scenarios[1].Digest, 64)
}

func TestRun_MissingPath(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestRun_EmptyDirectory(t *testing.T) {
	_, err := execute(t, "run", t.TempDir())

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no scenario files found")
}

func TestRun_InvalidScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "name: bad\nprocesses: {}\n")

	_, err := execute(t, "run", path)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load")
}

func TestRun_StoresRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	path := writeFile(t, dir, "pingpong.yaml", pingpongScenario)

	storeRun(t, dbPath, path, "run-1")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	run, err := st.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "pingpong", run.Scenario)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, int64(5), run.FinalTick)
	assert.Equal(t, int64(4), run.EventCount)
	assert.Equal(t, 3_600_000.0, run.TicksPerHour)
	assert.Equal(t, 100, run.Config.PoolSoftMax)

	state, err := st.GetRunState(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, state.Intact)
	assert.Len(t, state.Events, 4)
}

func TestRun_ConfigBudget(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	path := writeFile(t, dir, "pingpong.yaml", pingpongScenario)
	cfgPath := writeFile(t, dir, "simkernel.toml", "max_events = 2\n")

	out, err := execute(t, "--config", cfgPath, "run", "--db", dbPath, path)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "run stopped")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.LatestRunFor(context.Background(), "pingpong")
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.Status)
	assert.Equal(t, int64(2), run.EventCount)
	assert.Equal(t, 2, run.Config.MaxEvents)
}

func TestRun_TraceDBFromEnv(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "env.db")
	path := writeFile(t, dir, "pingpong.yaml", pingpongScenario)
	t.Setenv("SIMKERNEL_TRACE_DB", dbPath)

	_, err := execute(t, "run", path)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Len(t, runs[0].ID, 36, "generated run IDs are UUIDs")
}
