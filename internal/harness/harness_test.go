package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/trace"
)

func writeScenario(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runScenario(t *testing.T, sc *Scenario) *Result {
	t.Helper()
	result, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	return result
}

func TestRun_Golden(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			sc, err := LoadScenario(path)
			require.NoError(t, err)

			result := runScenario(t, sc)

			assert.True(t, result.Pass, "expectations failed:\n%s", strings.Join(result.Errors, "\n"))
			AssertGolden(t, sc.Name, result)
		})
	}
}

func TestRun_DeterministicDigest(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/tie_break.yaml")
	require.NoError(t, err)

	first := runScenario(t, sc)
	second := runScenario(t, sc)

	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, -1, trace.FirstDivergence(first.Records, second.Records))
}

func TestRun_Records(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/tie_break.yaml")
	require.NoError(t, err)

	result := runScenario(t, sc)

	kinds := make([]trace.Kind, 0, len(result.Records))
	for _, r := range result.Records {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []trace.Kind{
		trace.KindDispatch,  // A at 5
		trace.KindDispatch,  // B at 5
		trace.KindResume,    // A at 8
		trace.KindCondition, // B at 8
	}, kinds)
	assert.Equal(t, int64(0), result.Stats.Audits)
	assert.Equal(t, 2, result.Stats.Pool.Created)
}

type countingRecorder struct {
	n int
}

func (c *countingRecorder) RecordEvent(context.Context, trace.Record) error {
	c.n++
	return nil
}

func TestRun_ForwardsToRecorder(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/ordering.yaml")
	require.NoError(t, err)
	rec := &countingRecorder{}

	result, err := Run(context.Background(), sc, Options{Recorder: rec})
	require.NoError(t, err)

	assert.Equal(t, 3, rec.n)
	assert.Len(t, result.Records, 3)
}

func TestRun_ExpectationFailure(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/ordering.yaml")
	require.NoError(t, err)

	wrongTick := int64(99)
	sc.Expect = Expect{Order: []string{"A", "C"}, FinalTick: &wrongTick}

	result := runScenario(t, sc)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: order")
	assert.Contains(t, result.Errors[1], "final tick 99")
}

func TestRun_EventBudget(t *testing.T) {
	path := writeScenario(t, "loop.yaml", `
name: loop
max_events: 5
processes:
  ticker:
    steps:
      - schedule: ticker
        delay: 1
schedule:
  - { process: ticker, delay: 0 }
`)
	sc, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(context.Background(), sc, Options{})

	require.Error(t, err)
	assert.True(t, engine.IsBudgetExceededError(err))
	require.NotNil(t, result)
	assert.False(t, result.Pass)
	assert.Equal(t, int64(4), result.FinalTick)
}

func TestRun_InterruptNotParked(t *testing.T) {
	path := writeScenario(t, "self.yaml", `
name: self
processes:
  A:
    steps:
      - interrupt: A
      - interrupt: B
  B: { steps: [] }
schedule:
  - { process: A, delay: 0 }
expect:
  trace:
    - "0 A start"
    - "0 A interrupt A: not parked"
    - "0 A interrupt B: not running"
    - "0 A end"
`)
	sc, err := LoadScenario(path)
	require.NoError(t, err)

	result := runScenario(t, sc)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_WaitPriority(t *testing.T) {
	path := writeScenario(t, "prio.yaml", `
name: prio
processes:
  A:
    steps:
      - wait: 4
        priority: 3
  B: { steps: [] }
schedule:
  - { process: A, delay: 0 }
  - { process: B, delay: 4, priority: 1 }
expect:
  trace:
    - "0 A start"
    - "0 A wait 4"
    - "4 B start"
    - "4 B end"
    - "4 A resume"
    - "4 A end"
`)
	sc, err := LoadScenario(path)
	require.NoError(t, err)

	result := runScenario(t, sc)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown field",
			file:    "typo.yaml",
			body:    "name: x\nproceses: {}\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			file:    "noname.yaml",
			body:    "processes: { A: { steps: [] } }\nschedule: [ { process: A, delay: 0 } ]\n",
			wantErr: "name is required",
		},
		{
			name:    "unknown scheduled process",
			file:    "unknown.yaml",
			body:    "name: x\nprocesses: { A: { steps: [] } }\nschedule: [ { process: Z, delay: 0 } ]\n",
			wantErr: `unknown process "Z"`,
		},
		{
			name:    "negative delay",
			file:    "neg.yaml",
			body:    "name: x\nprocesses: { A: { steps: [] } }\nschedule: [ { process: A, delay: -1 } ]\n",
			wantErr: "delay must be >= 0",
		},
		{
			name:    "multiple actions",
			file:    "multi.yaml",
			body:    "name: x\nprocesses: { A: { steps: [ { set: f, mark: m } ] } }\nschedule: [ { process: A, delay: 0 } ]\n",
			wantErr: "multiple actions",
		},
		{
			name:    "empty step",
			file:    "empty.yaml",
			body:    "name: x\nprocesses: { A: { steps: [ {} ] } }\nschedule: [ { process: A, delay: 0 } ]\n",
			wantErr: "step has no action",
		},
		{
			name:    "cancel out of range",
			file:    "cancel.yaml",
			body:    "name: x\nprocesses: { A: { steps: [] } }\nschedule: [ { process: A, delay: 0 } ]\ncancel: [3]\n",
			wantErr: "index 3 out of range",
		},
		{
			name:    "cue not concrete",
			file:    "open.cue",
			body:    "name: string\nprocesses: A: steps: []\nschedule: [{process: \"A\", delay: 0}]\n",
			wantErr: "not concrete",
		},
		{
			name:    "cue conflict",
			file:    "conflict.cue",
			body:    "name: \"x\"\nname: \"y\"\n",
			wantErr: "CUE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_CUE(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/interrupt.cue")
	require.NoError(t, err)

	assert.Equal(t, "interrupt", sc.Name)
	require.Contains(t, sc.Processes, "sleeper")
	steps := sc.Processes["sleeper"].Steps
	require.Len(t, steps, 2)
	require.NotNil(t, steps[0].Wait)
	assert.Equal(t, int64(100), *steps[0].Wait)
	assert.Equal(t, "unreachable", steps[1].Mark)
	require.NotNil(t, sc.Expect.FinalTick)
	assert.Equal(t, int64(100), *sc.Expect.FinalTick)
}

func TestFormatTrace(t *testing.T) {
	result := NewResult("x")
	result.addTrace(3, "A", "start")
	result.addTrace(3, "A", "end")
	result.FinalTick = 3

	assert.Equal(t, "3 A start\n3 A end\nfinal_tick 3\n", string(FormatTrace(result)))
}
