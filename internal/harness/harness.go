package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/trace"
)

// Options tune a scenario run. The zero value runs with discarded logs, the
// default time scale and no extra recorder.
type Options struct {
	// Logger receives kernel logs. Default: discarded.
	Logger *slog.Logger

	// Recorder receives every kernel record in addition to the result,
	// e.g. a store.RunRecorder.
	Recorder engine.Recorder

	// Tracer receives one span per dispatched event.
	Tracer oteltrace.Tracer

	// TicksPerHour applies when the scenario does not set its own.
	TicksPerHour float64

	// PoolSoftMax is the idle-pool hint.
	PoolSoftMax int

	// MaxEvents applies when the scenario does not set its own.
	MaxEvents int
}

// Harness executes one scenario against a fresh EventManager.
//
// Every scripted action runs inside a process, so state below is only ever
// touched by the single ACTIVE process or by the manager while it evaluates
// conditions. No lock is needed.
type Harness struct {
	scenario *Scenario
	em       *engine.EventManager
	result   *Result

	flags   map[string]bool
	running map[string]*engine.Process // Latest live process per name
	pending map[string]*engine.Event   // Latest scheduled event per name
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh EventManager with the scenario's scale and budget
//  2. Queue the schedule and apply scenario-level cancellations
//  3. Run until the queue drains
//  4. Evaluate expectations against the trace
//
// Returns an error when the kernel stops abnormally (budget, cancellation);
// the partial result is still returned.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	}

	collector := &collectingRecorder{next: opts.Recorder}
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRecorder(collector),
		engine.WithPoolSoftMax(opts.PoolSoftMax),
	}
	if opts.Tracer != nil {
		engineOpts = append(engineOpts, engine.WithTracer(opts.Tracer))
	}

	tph := scenario.TicksPerHour
	if tph == 0 {
		tph = opts.TicksPerHour
	}
	if tph > 0 {
		engineOpts = append(engineOpts, engine.WithTimeScale(tph))
	}

	maxEvents := scenario.MaxEvents
	if maxEvents == 0 {
		maxEvents = opts.MaxEvents
	}
	engineOpts = append(engineOpts, engine.WithMaxEvents(maxEvents))

	h := &Harness{
		scenario: scenario,
		em:       engine.New(engineOpts...),
		result:   NewResult(scenario.Name),
		flags:    make(map[string]bool),
		running:  make(map[string]*engine.Process),
		pending:  make(map[string]*engine.Event),
	}
	defer func() {
		if err := h.em.Shutdown(); err != nil {
			logger.Warn("harness shutdown failed", "scenario", scenario.Name, "error", err)
		}
	}()

	events := make([]*engine.Event, len(scenario.Schedule))
	for i, entry := range scenario.Schedule {
		ev, err := h.em.Schedule(entry.Delay, entry.Priority, h.target(entry.Process))
		if err != nil {
			return nil, fmt.Errorf("schedule[%d]: %w", i, err)
		}
		events[i] = ev
		h.pending[entry.Process] = ev
	}
	for _, idx := range scenario.Cancel {
		h.em.Cancel(events[idx])
	}

	runErr := h.em.Run(ctx)

	result := h.result
	result.FinalTick = h.em.CurrentTick()
	result.Records = collector.records
	result.Digest = trace.Digest(collector.records)
	result.Stats = h.em.Stats()

	if runErr != nil {
		result.AddError(fmt.Sprintf("run stopped: %v", runErr))
		return result, fmt.Errorf("run scenario %s: %w", scenario.Name, runErr)
	}

	for _, msg := range EvaluateExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}
	return result, nil
}

// target returns the ProcessTarget that executes the named script.
func (h *Harness) target(name string) engine.ProcessTarget {
	return engine.TargetFunc(name, func(ctx context.Context) {
		h.execute(ctx, name)
	})
}

// execute runs one process script. An interrupted process unwinds through
// the deferred trace entry.
func (h *Harness) execute(ctx context.Context, name string) {
	self := engine.Current(ctx)
	h.running[name] = self
	h.trace(ctx, name, "start")

	finished := false
	defer func() {
		if h.running[name] == self {
			delete(h.running, name)
		}
		if !finished {
			h.trace(ctx, name, "terminated")
		}
	}()

	for _, step := range h.scenario.Processes[name].Steps {
		h.step(ctx, name, step)
	}

	h.trace(ctx, name, "end")
	finished = true
}

// step executes one scripted action.
func (h *Harness) step(ctx context.Context, name string, step Step) {
	action, _ := step.action() // Validated at load time

	switch action {
	case stepWait:
		h.trace(ctx, name, fmt.Sprintf("wait %d", *step.Wait))
		if err := engine.Wait(ctx, *step.Wait, step.Priority); err != nil {
			h.trace(ctx, name, "wait failed: "+err.Error())
			return
		}
		h.trace(ctx, name, "resume")

	case stepWaitUntil:
		flag := step.WaitUntil
		h.trace(ctx, name, "wait_until "+flag)
		if err := engine.WaitUntil(ctx, func() bool { return h.flags[flag] }); err != nil {
			h.trace(ctx, name, "wait_until failed: "+err.Error())
			return
		}
		h.trace(ctx, name, "resume")

	case stepRelease:
		engine.WaitUntilEnded(ctx)
		h.trace(ctx, name, "release")

	case stepSet:
		h.flags[step.Set] = true
		h.trace(ctx, name, "set "+step.Set)

	case stepClear:
		h.flags[step.Clear] = false
		h.trace(ctx, name, "clear "+step.Clear)

	case stepStart:
		h.trace(ctx, name, "spawn "+step.Start)
		if _, err := engine.Start(ctx, h.target(step.Start)); err != nil {
			h.trace(ctx, name, "spawn failed: "+err.Error())
		}

	case stepSchedule:
		ev, err := h.em.Schedule(step.Delay, step.Priority, h.target(step.Schedule))
		if err != nil {
			h.trace(ctx, name, "schedule failed: "+err.Error())
			return
		}
		h.pending[step.Schedule] = ev
		h.trace(ctx, name, fmt.Sprintf("schedule %s +%d", step.Schedule, step.Delay))

	case stepInterrupt:
		victim, ok := h.running[step.Interrupt]
		if !ok {
			h.trace(ctx, name, "interrupt "+step.Interrupt+": not running")
			return
		}
		if err := h.em.Interrupt(victim); err != nil {
			h.trace(ctx, name, "interrupt "+step.Interrupt+": not parked")
			return
		}
		h.trace(ctx, name, "interrupt "+step.Interrupt)

	case stepCancel:
		ev := h.pending[step.Cancel]
		if !h.em.Cancel(ev) {
			h.trace(ctx, name, "cancel "+step.Cancel+": not pending")
			return
		}
		h.trace(ctx, name, "cancel "+step.Cancel)

	case stepMark:
		h.trace(ctx, name, "mark "+step.Mark)
	}
}

func (h *Harness) trace(ctx context.Context, name, action string) {
	h.result.addTrace(engine.CurrentTick(ctx), name, action)
}

// collectingRecorder keeps every record and forwards it to an optional sink.
type collectingRecorder struct {
	records []trace.Record
	next    engine.Recorder
}

func (c *collectingRecorder) RecordEvent(ctx context.Context, rec trace.Record) error {
	c.records = append(c.records, rec)
	if c.next != nil {
		return c.next.RecordEvent(ctx, rec)
	}
	return nil
}
