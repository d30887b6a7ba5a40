package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Flag is a bit in a process's execution state.
type Flag uint8

const (
	// FlagTerminate marks a parked process to unwind on its next resumption.
	FlagTerminate Flag = 1 << iota
	// FlagActive marks the single process currently executing model code.
	FlagActive
	// FlagCondWait marks a process parked until its condition holds.
	FlagCondWait
	// FlagSchedWait marks a process parked until a future tick.
	FlagSchedWait
)

// ACTIVE, COND_WAIT and SCHED_WAIT are mutually exclusive.
// TERMINATE is only ever combined with one of the wait flags.
const waitFlags = FlagCondWait | FlagSchedWait

func (f Flag) String() string {
	if f == 0 {
		return "IDLE"
	}
	var parts []string
	if f&FlagActive != 0 {
		parts = append(parts, "ACTIVE")
	}
	if f&FlagCondWait != 0 {
		parts = append(parts, "COND_WAIT")
	}
	if f&FlagSchedWait != 0 {
		parts = append(parts, "SCHED_WAIT")
	}
	if f&FlagTerminate != 0 {
		parts = append(parts, "TERMINATE")
	}
	return strings.Join(parts, "|")
}

// Process is a reusable execution context backed by one goroutine.
//
// A process is created once, then repeatedly bound to a target, run, and
// returned to the Pool. While bound it may park any number of times; the
// goroutine's stack keeps the target's local state across suspensions.
//
// LOCKING: all bound state below mu is read and written under mu. Code that
// also needs the manager mutex must take it first. Never take the manager
// mutex or the pool mutex while holding mu.
type Process struct {
	id   int
	name string
	pool *Pool
	wake chan struct{} // Assignment and resumption signal (buffered, size 1)

	// Guarded by pool.mu.
	registered bool

	mu     sync.Mutex
	em     *EventManager   // Manager currently driving this process
	next   *Process        // Process that started this one, resumed on first yield
	target ProcessTarget   // Bound target
	ctx    context.Context // Parent context for the bound target
	gen    uint64          // Incremented on every bind
	flags  Flag
}

func newProcess(id int, pool *Pool) *Process {
	return &Process{
		id:   id,
		name: fmt.Sprintf("process-%d", id+1),
		pool: pool,
		wake: make(chan struct{}, 1),
	}
}

// ID returns the process's index in its pool.
func (p *Process) ID() int { return p.id }

// Name returns a stable human-readable name.
func (p *Process) Name() string { return p.name }

func (p *Process) String() string {
	return fmt.Sprintf("%s[%s]", p.name, p.Flags())
}

// Description returns the bound target's description, or "" when idle.
func (p *Process) Description() string {
	p.mu.Lock()
	target := p.target
	p.mu.Unlock()
	if target == nil {
		return ""
	}
	return target.Description()
}

// Flags returns a snapshot of the execution state.
func (p *Process) Flags() Flag {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags
}

// TestFlag reports whether any bit of flag is set.
func (p *Process) TestFlag(flag Flag) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags&flag != 0
}

func (p *Process) setFlag(flag Flag) {
	p.mu.Lock()
	p.flags |= flag
	p.mu.Unlock()
}

func (p *Process) clearFlag(flag Flag) {
	p.mu.Lock()
	p.flags &^= flag
	p.mu.Unlock()
}

// suspend transitions ACTIVE to the given wait flag.
func (p *Process) suspend(wait Flag) {
	p.mu.Lock()
	p.flags = p.flags&^FlagActive | wait
	p.mu.Unlock()
}

// activate clears the wait flags and marks the process ACTIVE. A process
// flagged TERMINATE keeps its flags untouched so it is never ACTIVE while
// unwinding.
func (p *Process) activate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flags&FlagTerminate != 0 {
		return
	}
	p.flags = p.flags&^waitFlags | FlagActive
}

func (p *Process) manager() *EventManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.em
}

// bind assigns new work to an idle process.
func (p *Process) bind(ctx context.Context, em *EventManager, next *Process, target ProcessTarget) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.em = em
	p.next = next
	p.target = target
	p.ctx = ctx
	p.gen++
	p.flags = 0
}

// binding returns everything the worker loop needs to run the bound target.
func (p *Process) binding() (context.Context, *EventManager, ProcessTarget, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx, p.em, p.target, p.gen
}

func (p *Process) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// getAndClearNext returns the spawning process and forgets it; control is
// about to pass back to it.
func (p *Process) getAndClearNext() *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.next
	p.next = nil
	return next
}

// reset clears all bound state before the process returns to the pool.
func (p *Process) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.em = nil
	p.next = nil
	p.target = nil
	p.ctx = nil
	p.flags = 0
}

// loop is the worker goroutine. Registering in the idle pool is its first
// action; it then runs one bound target per wake until the pool closes its
// wake channel.
func (p *Process) loop() {
	p.pool.release(p)
	for range p.wake {
		ctx, em, target, gen := p.binding()
		em.executeTarget(withProcess(ctx, p, gen), p, target)
	}
}

// park hands control away and blocks until the manager (or a child process)
// resumes this one. A process flagged TERMINATE unwinds instead of returning.
func (p *Process) park(em *EventManager) {
	em.handOff(p.getAndClearNext())
	<-p.wake
	if p.TestFlag(FlagTerminate) {
		panic(processTerminated{proc: p.name})
	}
}

// processTerminated is the panic value used to unwind an interrupted target.
type processTerminated struct {
	proc string
}

func (t processTerminated) String() string {
	return "process " + t.proc + " terminated"
}
