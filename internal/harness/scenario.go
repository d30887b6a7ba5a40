package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted simulation.
// A scenario declares named processes, the events that start them, and the
// expectations checked against the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// TicksPerHour sets the time scale. 0 keeps the runner default.
	TicksPerHour float64 `yaml:"ticks_per_hour,omitempty" json:"ticks_per_hour,omitempty"`

	// MaxEvents bounds the run. 0 keeps the runner default.
	MaxEvents int `yaml:"max_events,omitempty" json:"max_events,omitempty"`

	// Processes maps a process name to its script.
	Processes map[string]ProcessDef `yaml:"processes" json:"processes"`

	// Schedule lists the events queued before the run starts.
	Schedule []ScheduleEntry `yaml:"schedule" json:"schedule"`

	// Cancel lists indexes into Schedule that are cancelled before the run.
	Cancel []int `yaml:"cancel,omitempty" json:"cancel,omitempty"`

	// Expect holds the checks evaluated after the run.
	Expect Expect `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// ProcessDef is the script one process executes, step by step.
type ProcessDef struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one scripted action. Exactly one action field must be set.
type Step struct {
	// Wait suspends for this many ticks.
	Wait *int64 `yaml:"wait,omitempty" json:"wait,omitempty"`

	// WaitUntil suspends until the named flag is set.
	WaitUntil string `yaml:"wait_until,omitempty" json:"wait_until,omitempty"`

	// Release ends the condition wait registration.
	Release bool `yaml:"release,omitempty" json:"release,omitempty"`

	// Set and Clear change a named flag.
	Set   string `yaml:"set,omitempty" json:"set,omitempty"`
	Clear string `yaml:"clear,omitempty" json:"clear,omitempty"`

	// Start runs the named process immediately as a child.
	Start string `yaml:"start,omitempty" json:"start,omitempty"`

	// Schedule queues the named process Delay ticks from now.
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	// Interrupt terminates the named process if it is parked.
	Interrupt string `yaml:"interrupt,omitempty" json:"interrupt,omitempty"`

	// Cancel removes the most recent pending event for the named process.
	Cancel string `yaml:"cancel,omitempty" json:"cancel,omitempty"`

	// Mark appends a label to the trace.
	Mark string `yaml:"mark,omitempty" json:"mark,omitempty"`

	// Delay and Priority parameterize Schedule; Priority also applies to Wait.
	Delay    int64 `yaml:"delay,omitempty" json:"delay,omitempty"`
	Priority int   `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// ScheduleEntry queues one process at load time.
type ScheduleEntry struct {
	Process  string `yaml:"process" json:"process"`
	Delay    int64  `yaml:"delay" json:"delay"`
	Priority int    `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// Expect holds the post-run checks. Unset fields are not checked.
type Expect struct {
	// Order is the expected order in which processes first start.
	Order []string `yaml:"order,omitempty" json:"order,omitempty"`

	// FinalTick is the expected clock value after the run.
	FinalTick *int64 `yaml:"final_tick,omitempty" json:"final_tick,omitempty"`

	// Starts maps a process name to how many times it started.
	Starts map[string]int `yaml:"starts,omitempty" json:"starts,omitempty"`

	// Trace is the exact expected trace, one "tick process action" per entry.
	Trace []string `yaml:"trace,omitempty" json:"trace,omitempty"`
}

// LoadScenario reads and parses a scenario file.
// Files ending in .cue are evaluated with CUE; anything else is YAML.
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario *Scenario
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		scenario, err = parseCUE(path, data)
	} else {
		scenario, err = parseYAML(data)
	}
	if err != nil {
		return nil, err
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// parseYAML decodes with strict field validation (catches typos like
// "proceses:" vs "processes:").
func parseYAML(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// parseCUE evaluates the file, requires every value to be concrete, and
// decodes the result through the json tags.
func parseCUE(path string, data []byte) (*Scenario, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE scenario is not concrete: %w", err)
	}

	var scenario Scenario
	if err := value.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to decode CUE: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and every
// process reference resolves.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.TicksPerHour < 0 {
		return fmt.Errorf("ticks_per_hour must be >= 0")
	}
	if s.MaxEvents < 0 {
		return fmt.Errorf("max_events must be >= 0")
	}
	if len(s.Processes) == 0 {
		return fmt.Errorf("processes map is required and must be non-empty")
	}
	if len(s.Schedule) == 0 {
		return fmt.Errorf("schedule list is required and must be non-empty")
	}

	for i, entry := range s.Schedule {
		if _, ok := s.Processes[entry.Process]; !ok {
			return fmt.Errorf("schedule[%d]: unknown process %q", i, entry.Process)
		}
		if entry.Delay < 0 {
			return fmt.Errorf("schedule[%d]: delay must be >= 0", i)
		}
	}

	for _, idx := range s.Cancel {
		if idx < 0 || idx >= len(s.Schedule) {
			return fmt.Errorf("cancel: index %d out of range", idx)
		}
	}

	for _, name := range sortedNames(s.Processes) {
		for i, step := range s.Processes[name].Steps {
			if err := validateStep(s, step); err != nil {
				return fmt.Errorf("processes.%s.steps[%d]: %w", name, i, err)
			}
		}
	}

	for _, name := range s.Expect.Order {
		if _, ok := s.Processes[name]; !ok {
			return fmt.Errorf("expect.order: unknown process %q", name)
		}
	}
	return nil
}

// validateStep validates a single step based on its action.
func validateStep(s *Scenario, step Step) error {
	action, err := step.action()
	if err != nil {
		return err
	}

	switch action {
	case stepWait:
		if *step.Wait < 0 {
			return fmt.Errorf("wait must be >= 0")
		}
	case stepStart, stepSchedule, stepInterrupt, stepCancel:
		target := step.Start + step.Schedule + step.Interrupt + step.Cancel
		if _, ok := s.Processes[target]; !ok {
			return fmt.Errorf("%s: unknown process %q", action, target)
		}
		if action == stepSchedule && step.Delay < 0 {
			return fmt.Errorf("schedule: delay must be >= 0")
		}
	}
	return nil
}

type stepAction string

const (
	stepWait      stepAction = "wait"
	stepWaitUntil stepAction = "wait_until"
	stepRelease   stepAction = "release"
	stepSet       stepAction = "set"
	stepClear     stepAction = "clear"
	stepStart     stepAction = "start"
	stepSchedule  stepAction = "schedule"
	stepInterrupt stepAction = "interrupt"
	stepCancel    stepAction = "cancel"
	stepMark      stepAction = "mark"
)

// action returns the single action the step performs.
func (s Step) action() (stepAction, error) {
	var set []stepAction
	if s.Wait != nil {
		set = append(set, stepWait)
	}
	if s.WaitUntil != "" {
		set = append(set, stepWaitUntil)
	}
	if s.Release {
		set = append(set, stepRelease)
	}
	if s.Set != "" {
		set = append(set, stepSet)
	}
	if s.Clear != "" {
		set = append(set, stepClear)
	}
	if s.Start != "" {
		set = append(set, stepStart)
	}
	if s.Schedule != "" {
		set = append(set, stepSchedule)
	}
	if s.Interrupt != "" {
		set = append(set, stepInterrupt)
	}
	if s.Cancel != "" {
		set = append(set, stepCancel)
	}
	if s.Mark != "" {
		set = append(set, stepMark)
	}

	switch len(set) {
	case 0:
		return "", fmt.Errorf("step has no action")
	case 1:
		return set[0], nil
	default:
		return "", fmt.Errorf("step has multiple actions: %v", set)
	}
}
