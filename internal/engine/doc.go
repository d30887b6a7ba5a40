// Package engine implements the simkernel discrete-event simulation kernel.
//
// The kernel advances a virtual clock measured in integer ticks, keeps a
// globally ordered queue of future events, and runs each event's target on a
// pooled process. Processes are goroutines that park on a channel, so a model
// may suspend in the middle of a target and resume on a later tick with its
// local state intact.
//
// ARCHITECTURE:
//
// Single-Active Event Loop:
// Exactly one process is ACTIVE at any instant. The EventManager pops the
// earliest event, advances the tick, wakes a process and blocks until that
// process completes, waits, or terminates. Only then is the next event popped.
//
// Event Processing Flow:
//  1. Schedule() stamps an Event with (schedTick, priority, seq)
//  2. Run() pops events in ascending (schedTick, priority, seq) order
//  3. New targets are bound to a process from the Pool; resume events wake
//     the process parked on them
//  4. The process runs until Wait, WaitUntil, Start, or completion
//  5. Condition waiters are re-evaluated before the next event is popped
//
// CRITICAL PATTERNS:
//
// Logical Time:
// Ordering is purely integer-tick, priority, and insertion sequence. The
// time scale (ticks per hour) only converts ticks to seconds for reporting.
//
// Lock Ordering:
// The manager mutex is always acquired before a process mutex. The pool
// mutex is never held together with either. Processes never wake each other
// directly; every hand-off goes through the manager.
//
// Cooperative Suspension:
// Suspension happens only at explicit wait points. Interrupt marks a parked
// process for termination; it unwinds the next time it resumes.
package engine
