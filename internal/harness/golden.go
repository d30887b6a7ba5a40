package harness

import (
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a result as the text stored in golden files:
// one "tick process action" line per trace entry, then the final tick.
func FormatTrace(result *Result) []byte {
	var b strings.Builder
	for _, event := range result.Trace {
		b.WriteString(event.String())
		b.WriteByte('\n')
	}
	b.WriteString("final_tick ")
	b.WriteString(strconv.FormatInt(result.FinalTick, 10))
	b.WriteByte('\n')
	return []byte(b.String())
}

// AssertGolden compares a result's trace against a golden file.
// The golden file is stored in testdata/golden/{name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, FormatTrace(result))
}
