package engine

import (
	"context"
)

type processKey struct{}

// procRef ties a context to one binding of a process. A context that
// outlives its target (stored by model code and used later) carries a stale
// generation and is rejected.
type procRef struct {
	proc *Process
	gen  uint64
}

func withProcess(ctx context.Context, p *Process, gen uint64) context.Context {
	return context.WithValue(ctx, processKey{}, procRef{proc: p, gen: gen})
}

// Current returns the process executing the target that owns ctx.
//
// Panics with *ProcessError when ctx does not belong to a running target or
// the process is not ACTIVE. Both are programming errors in model code.
// A terminated process that is unwinding still counts as running, so
// deferred cleanup in a target may read the clock.
func Current(ctx context.Context) *Process {
	ref, ok := ctx.Value(processKey{}).(procRef)
	if !ok || ref.proc == nil {
		panic(&ProcessError{Op: "current", Reason: "context is not bound to a process"})
	}
	p := ref.proc
	p.mu.Lock()
	gen, flags := p.gen, p.flags
	p.mu.Unlock()
	if gen != ref.gen {
		panic(&ProcessError{Op: "current", Reason: "context belongs to a finished target on " + p.name})
	}
	if flags&(FlagActive|FlagTerminate) == 0 {
		panic(&ProcessError{Op: "current", Reason: p.name + " is not active (" + flags.String() + ")"})
	}
	return p
}

// CurrentTick returns the virtual time from inside a target.
func CurrentTick(ctx context.Context) int64 {
	return Current(ctx).manager().CurrentTick()
}

// suspendable returns the calling process, unwinding immediately if it has
// been terminated. Deferred code in an interrupted target cannot park again.
func suspendable(ctx context.Context) *Process {
	p := Current(ctx)
	if p.TestFlag(FlagTerminate) {
		panic(processTerminated{proc: p.name})
	}
	return p
}

// Wait suspends the calling process for ticks ticks. Other events scheduled
// for the resumption tick are ordered against it by priority and insertion
// order, as with Schedule.
//
// A zero wait yields to every event already queued for the current tick at
// the same or better priority.
//
// Returns NEGATIVE_DELAY without suspending if ticks < 0, and TICK_OVERFLOW
// if the resumption tick would not fit in an int64.
func Wait(ctx context.Context, ticks int64, priority int) error {
	p := suspendable(ctx)
	em := p.manager()

	if em.isConditionRegistered(p) {
		em.auditWaitUntil(p, "wait")
	}

	resume := &resumeTarget{proc: p, desc: "resume " + p.Description()}

	em.mu.Lock()
	if err := checkDelay(ticks, em.currentTick); err != nil {
		em.mu.Unlock()
		return err
	}
	em.insertLocked(ticks, priority, resume)
	p.suspend(FlagSchedWait)
	em.mu.Unlock()

	p.park(em)
	return nil
}

// WaitUntil suspends the calling process until cond returns true.
//
// The condition is evaluated by the manager after every executed event, and
// the process stays registered until WaitUntilEnded. Returns immediately if
// cond already holds.
//
// cond must only read model state; it runs on the manager's goroutine.
func WaitUntil(ctx context.Context, cond func() bool) error {
	p := suspendable(ctx)
	em := p.manager()

	if cond == nil {
		return &RuntimeError{Code: ErrCodeNilCondition, Message: "wait condition is nil", Tick: em.CurrentTick(), Process: p.name}
	}

	em.mu.Lock()
	em.registerConditionLocked(p, cond)
	em.mu.Unlock()

	if cond() {
		return nil
	}

	em.mu.Lock()
	p.suspend(FlagCondWait)
	em.mu.Unlock()

	p.park(em)
	return nil
}

// WaitUntilEnded removes the calling process from the condition set.
// Safe to call when not registered.
func WaitUntilEnded(ctx context.Context) {
	p := Current(ctx)
	p.manager().releaseCondition(p)
}

// Start runs target on a new process immediately, at the current tick,
// ahead of anything in the queue. The caller is suspended until the new
// process first yields or finishes.
func Start(ctx context.Context, target ProcessTarget) (*Process, error) {
	p := suspendable(ctx)
	em := p.manager()

	if target == nil {
		return nil, &RuntimeError{Code: ErrCodeNilTarget, Message: "target is nil", Tick: em.CurrentTick(), Process: p.name}
	}

	child := em.startProcess(ctx, p, target)
	<-p.wake
	return child, nil
}
