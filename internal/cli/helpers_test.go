package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/engine"
)

// pingpong passes: A waits, then releases B through a flag.
// Four kernel records: dispatch A, dispatch B, resume A, condition B.
const pingpongScenario = `
name: pingpong
processes:
  A:
    steps:
      - wait: 5
      - set: done
  B:
    steps:
      - wait_until: done
      - release: true
schedule:
  - { process: A, delay: 0 }
  - { process: B, delay: 1 }
expect:
  order: [A, B]
  final_tick: 5
`

// pingpongLate has the same name but A waits one tick longer.
const pingpongLate = `
name: pingpong
processes:
  A:
    steps:
      - wait: 6
      - set: done
  B:
    steps:
      - wait_until: done
      - release: true
schedule:
  - { process: A, delay: 0 }
  - { process: B, delay: 1 }
`

const failingScenario = `
name: failing
processes:
  A:
    steps:
      - wait: 3
schedule:
  - { process: A, delay: 0 }
expect:
  final_tick: 7
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs the root command and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// storeRun runs one scenario into the database under a fixed run ID.
func storeRun(t *testing.T, dbPath, scenarioPath, runID string) {
	t.Helper()
	cmd := newRunCommand(&RootOptions{Format: "text"}, engine.NewFixedGenerator(runID))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--db", dbPath, scenarioPath})
	require.NoError(t, cmd.Execute())
}

// jsonResponse decodes a CLIResponse whose data has type T.
type jsonResponse[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decodeResponse[T any](t *testing.T, out string) jsonResponse[T] {
	t.Helper()
	var resp jsonResponse[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}
