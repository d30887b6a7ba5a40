package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/trace"
)

func TestReplay_Matches(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	path := writeFile(t, dir, "pingpong.yaml", pingpongScenario)
	storeRun(t, dbPath, path, "run-1")

	out, err := execute(t, "replay", "--db", dbPath, path)

	require.NoError(t, err)
	assert.Contains(t, out, "Replay: pingpong against run run-1")
	assert.Contains(t, out, "Events: 4 stored, 4 replayed")
	assert.Contains(t, out, "✓ Replay matches stored run")
}

func TestReplay_UsesLatestRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	path := writeFile(t, dir, "pingpong.yaml", pingpongScenario)
	storeRun(t, dbPath, path, "run-1")
	storeRun(t, dbPath, path, "run-2")

	out, err := execute(t, "--format", "json", "replay", "--db", dbPath, path)

	require.NoError(t, err)
	resp := decodeResponse[ReplayResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-2", resp.Data.RunID)
	assert.True(t, resp.Data.Match)
	assert.True(t, resp.Data.Intact)
	assert.Equal(t, -1, resp.Data.Divergence)
}

func TestReplay_Diverges(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	path := writeFile(t, dir, "pingpong.yaml", pingpongScenario)
	storeRun(t, dbPath, path, "run-1")

	// Same scenario name, different timing.
	writeFile(t, dir, "pingpong.yaml", pingpongLate)

	out, err := execute(t, "--format", "json", "replay", "--db", dbPath, path)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse[ReplayResult](t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeDivergence, resp.Error.Code)
	assert.False(t, resp.Data.Match)
	assert.NotEqual(t, resp.Data.StoredDigest, resp.Data.ReplayDigest)

	// dispatch A, dispatch B agree; A's resume moved from tick 5 to 6.
	assert.Equal(t, 2, resp.Data.Divergence)
	require.NotNil(t, resp.Data.Stored)
	require.NotNil(t, resp.Data.Replayed)
	assert.Equal(t, trace.KindResume, resp.Data.Stored.Kind)
	assert.Equal(t, int64(5), resp.Data.Stored.SchedTick)
	assert.Equal(t, int64(6), resp.Data.Replayed.SchedTick)
}

func TestReplay_DivergenceText(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	path := writeFile(t, dir, "pingpong.yaml", pingpongScenario)
	storeRun(t, dbPath, path, "run-1")
	writeFile(t, dir, "pingpong.yaml", pingpongLate)

	out, err := execute(t, "replay", "--db", dbPath, path)

	require.Error(t, err)
	assert.Contains(t, out, "✗ Replay diverged")
	assert.Contains(t, out, "First divergence at event 2")
	assert.Contains(t, out, "stored:   seq=3 tick=5")
	assert.Contains(t, out, "replayed: seq=3 tick=6")
}

func TestReplay_CommandErrors(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	path := writeFile(t, dir, "pingpong.yaml", pingpongScenario)
	other := writeFile(t, dir, "failing.yaml", failingScenario)

	storeRun(t, dbPath, path, "run-1")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing db flag", []string{"replay", path}, "required flag"},
		{"no stored run", []string{"replay", "--db", dbPath, other}, "no stored run for scenario failing"},
		{"unknown run", []string{"replay", "--db", dbPath, "--run", "nope", path}, "run not found: nope"},
		{"wrong scenario", []string{"replay", "--db", dbPath, "--run", "run-1", other}, "belongs to scenario pingpong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.name != "missing db flag" {
				assert.Equal(t, ExitCommandError, GetExitCode(err))
			}
		})
	}
}
