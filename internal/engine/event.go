package engine

import (
	"context"
	"fmt"
)

// ProcessTarget is the executable unit a process runs.
//
// The kernel never inspects what a target does. Description is used only for
// logging, audit output, and trace records.
type ProcessTarget interface {
	Execute(ctx context.Context)
	Description() string
}

// TargetFunc adapts a closure into a ProcessTarget.
func TargetFunc(desc string, fn func(ctx context.Context)) ProcessTarget {
	return funcTarget{desc: desc, fn: fn}
}

type funcTarget struct {
	desc string
	fn   func(ctx context.Context)
}

func (t funcTarget) Execute(ctx context.Context) { t.fn(ctx) }
func (t funcTarget) Description() string         { return t.desc }

// Event is a scheduled unit of future work.
//
// Events are immutable after creation. The queue orders them by
// (SchedTick, Priority, Seq) ascending; Seq is the insertion sequence and
// makes ties strictly FIFO.
type Event struct {
	addedTick int64
	schedTick int64
	priority  int
	seq       int64
	target    ProcessTarget
}

func newEvent(currentTick, schedTick int64, priority int, seq int64, target ProcessTarget) *Event {
	return &Event{
		addedTick: currentTick,
		schedTick: schedTick,
		priority:  priority,
		seq:       seq,
		target:    target,
	}
}

// AddedTick returns the tick at which the event was queued.
func (e *Event) AddedTick() int64 { return e.addedTick }

// SchedTick returns the tick at which the event executes.
func (e *Event) SchedTick() int64 { return e.schedTick }

// Priority returns the event priority. Lower values run first.
func (e *Event) Priority() int { return e.priority }

// Seq returns the insertion sequence number.
func (e *Event) Seq() int64 { return e.seq }

// Target returns the target the event will run.
func (e *Event) Target() ProcessTarget { return e.target }

// Description returns the target's human-readable description.
func (e *Event) Description() string { return e.target.Description() }

func (e *Event) String() string {
	return fmt.Sprintf("event{tick=%d prio=%d seq=%d %q}", e.schedTick, e.priority, e.seq, e.Description())
}

// before reports whether e sorts ahead of other.
func (e *Event) before(other *Event) bool {
	if e.schedTick != other.schedTick {
		return e.schedTick < other.schedTick
	}
	if e.priority != other.priority {
		return e.priority < other.priority
	}
	return e.seq < other.seq
}

// resumeTarget marks an event that wakes a process parked in a scheduled
// wait. The manager handles it directly; Execute is never called.
type resumeTarget struct {
	proc *Process
	desc string
}

func (r *resumeTarget) Execute(context.Context) {}
func (r *resumeTarget) Description() string     { return r.desc }
