package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Expectation that failed: order, final_tick, starts, trace
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, event)
		}
	}

	return buf.String()
}

// EvaluateExpectations checks every set field of expect against the result.
// Returns one message per failed expectation, in a fixed order.
func EvaluateExpectations(result *Result, expect Expect) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(expect.Order) > 0 {
		add(assertStartOrder(result.Trace, expect.Order))
	}
	if expect.FinalTick != nil {
		add(assertFinalTick(result, *expect.FinalTick))
	}
	for _, name := range sortedNames(expect.Starts) {
		add(assertStartCount(result.Trace, name, expect.Starts[name]))
	}
	if len(expect.Trace) > 0 {
		add(assertTraceEquals(result.Trace, expect.Trace))
	}
	return errs
}

// startOrder returns process names in the order they first started.
func startOrder(trace []TraceEvent) []string {
	seen := make(map[string]bool)
	var order []string
	for _, event := range trace {
		if event.Action == "start" && !seen[event.Process] {
			seen[event.Process] = true
			order = append(order, event.Process)
		}
	}
	return order
}

// assertStartOrder checks that processes first started in the given order.
// Processes not listed may start anywhere in between.
func assertStartOrder(trace []TraceEvent, want []string) error {
	positions := make(map[string]int)
	for i, name := range startOrder(trace) {
		positions[name] = i + 1 // 1-indexed for readability
	}

	for _, name := range want {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     "order",
				Expected: fmt.Sprintf("all processes started: %v", want),
				Actual:   fmt.Sprintf("%s never started", name),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(want); i++ {
		prev, curr := want[i-1], want[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     "order",
				Expected: fmt.Sprintf("processes start in order: %v", want),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertFinalTick(result *Result, want int64) error {
	if result.FinalTick != want {
		return &AssertionError{
			Type:     "final_tick",
			Expected: fmt.Sprintf("final tick %d", want),
			Actual:   fmt.Sprintf("final tick %d", result.FinalTick),
		}
	}
	return nil
}

// assertStartCount checks the number of times a process started.
func assertStartCount(trace []TraceEvent, name string, want int) error {
	count := 0
	for _, event := range trace {
		if event.Process == name && event.Action == "start" {
			count++
		}
	}
	if count != want {
		return &AssertionError{
			Type:     "starts",
			Expected: fmt.Sprintf("%d starts of %s", want, name),
			Actual:   fmt.Sprintf("%d starts", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceEquals compares the whole trace line by line.
func assertTraceEquals(trace []TraceEvent, want []string) error {
	for i, line := range want {
		if i >= len(trace) {
			return &AssertionError{
				Type:     "trace",
				Expected: fmt.Sprintf("entry %d = %q", i+1, line),
				Actual:   fmt.Sprintf("trace ended after %d entries", len(trace)),
				Trace:    trace,
			}
		}
		if got := trace[i].String(); got != line {
			return &AssertionError{
				Type:     "trace",
				Expected: fmt.Sprintf("entry %d = %q", i+1, line),
				Actual:   fmt.Sprintf("entry %d = %q", i+1, got),
				Trace:    trace,
			}
		}
	}
	if len(trace) > len(want) {
		return &AssertionError{
			Type:     "trace",
			Expected: fmt.Sprintf("%d entries", len(want)),
			Actual:   fmt.Sprintf("%d entries, first extra %q", len(trace), trace[len(want)].String()),
			Trace:    trace,
		}
	}
	return nil
}
