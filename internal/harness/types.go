package harness

import (
	"fmt"
	"sort"

	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/trace"
)

// TraceEvent is one scripted action as observed from inside a process.
type TraceEvent struct {
	Tick    int64  `json:"tick"`
	Process string `json:"process"`
	Action  string `json:"action"`
}

// String returns the "tick process action" form used by expectations and
// golden files.
func (e TraceEvent) String() string {
	return fmt.Sprintf("%d %s %s", e.Tick, e.Process, e.Action)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Scenario is the name of the scenario that produced this result.
	Scenario string `json:"scenario"`

	// Pass indicates overall success: true if every expectation held.
	Pass bool `json:"pass"`

	// Trace contains every scripted action in execution order.
	Trace []TraceEvent `json:"trace"`

	// Records is the kernel-level event log; Digest is its content hash.
	Records []trace.Record `json:"records"`
	Digest  string         `json:"digest"`

	// FinalTick is the manager's clock when the run ended.
	FinalTick int64 `json:"final_tick"`

	// Stats are the manager counters after the run.
	Stats engine.Stats `json:"-"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends a scripted action to the trace.
func (r *Result) addTrace(tick int64, process, action string) {
	r.Trace = append(r.Trace, TraceEvent{Tick: tick, Process: process, Action: action})
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
