package engine

import (
	"log/slog"
	"sync"
)

// DefaultPoolSoftMax is the idle-pool size above which Trim releases workers.
const DefaultPoolSoftMax = 100

// Pool is the registry of reusable processes.
//
// Processes are index-addressed: procs[id] is the process with that id, and
// idle is a LIFO free-list of ids. LIFO keeps the most recently finished
// process hot, so a run with no concurrent demand reuses one worker.
//
// The pool has no hard cap. When no idle process exists a new one is
// started and the requester waits until it registers itself idle. The soft
// maximum is only a hint consulted by Trim; idle processes above it linger
// until trimmed or closed.
//
// Thread-safety: all fields are guarded by mu. mu is never held while
// acquiring a process or manager mutex.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	procs    []*Process // nil entries are released workers
	idle     []int
	starting int
	softMax  int
	closed   bool
	logger   *slog.Logger
}

// NewPool creates an empty pool. softMax <= 0 selects DefaultPoolSoftMax.
func NewPool(softMax int, logger *slog.Logger) *Pool {
	if softMax <= 0 {
		softMax = DefaultPoolSoftMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	pl := &Pool{
		procs:   make([]*Process, 0, softMax),
		idle:    make([]int, 0, softMax),
		softMax: softMax,
		logger:  logger,
	}
	pl.cond = sync.NewCond(&pl.mu)
	return pl
}

// acquire returns an idle process, starting a new worker if none is idle.
// Panics with *ProcessError once the pool is shut down: a released worker
// never registers idle, so waiting would never end.
func (pl *Pool) acquire() *Process {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	for len(pl.idle) == 0 {
		if pl.closed {
			panic(&ProcessError{Op: "acquire", Reason: "pool is shut down"})
		}
		if pl.starting == 0 {
			pl.spawnLocked()
		}
		// The new worker's first action is release(), which signals.
		pl.cond.Wait()
	}

	n := len(pl.idle)
	id := pl.idle[n-1]
	pl.idle = pl.idle[:n-1]
	return pl.procs[id]
}

func (pl *Pool) spawnLocked() {
	p := newProcess(len(pl.procs), pl)
	pl.procs = append(pl.procs, p)
	pl.starting++
	pl.logger.Debug("starting process", "process", p.name, "total", len(pl.procs))
	go p.loop()
}

// release returns a process to the idle list. The process's bound state
// must already be cleared.
func (pl *Pool) release(p *Process) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if !p.registered {
		p.registered = true
		pl.starting--
	}
	if pl.closed {
		close(p.wake)
		pl.procs[p.id] = nil
		pl.cond.Broadcast()
		return
	}
	pl.idle = append(pl.idle, p.id)
	pl.cond.Signal()
}

// Trim releases idle workers above the soft maximum, oldest first.
// Returns the number of workers released.
func (pl *Pool) Trim() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	excess := len(pl.idle) - pl.softMax
	if excess <= 0 {
		return 0
	}
	for _, id := range pl.idle[:excess] {
		close(pl.procs[id].wake)
		pl.procs[id] = nil
	}
	pl.idle = append(pl.idle[:0], pl.idle[excess:]...)
	pl.logger.Debug("trimmed idle processes", "released", excess, "idle", len(pl.idle))
	return excess
}

// shutdown releases every idle worker. Busy workers are released when they
// next return to the pool. Only EventManager.Shutdown calls it, after the
// manager stops accepting work.
func (pl *Pool) shutdown() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.closed {
		return
	}
	pl.closed = true
	for _, id := range pl.idle {
		close(pl.procs[id].wake)
		pl.procs[id] = nil
	}
	pl.idle = nil
}

// PoolStats is a snapshot of pool occupancy.
type PoolStats struct {
	Created int // Workers ever started
	Live    int // Workers not yet released
	Idle    int // Workers waiting for assignment
	SoftMax int
}

// Stats returns a snapshot of pool occupancy.
func (pl *Pool) Stats() PoolStats {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	live := 0
	for _, p := range pl.procs {
		if p != nil {
			live++
		}
	}
	return PoolStats{
		Created: len(pl.procs),
		Live:    live,
		Idle:    len(pl.idle),
		SoftMax: pl.softMax,
	}
}

// snapshot returns the live processes. Flags are read after mu is released.
func (pl *Pool) snapshot() []*Process {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	out := make([]*Process, 0, len(pl.procs))
	for _, p := range pl.procs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// countFlag returns how many live processes have any bit of flag set.
func (pl *Pool) countFlag(flag Flag) int {
	n := 0
	for _, p := range pl.snapshot() {
		if p.TestFlag(flag) {
			n++
		}
	}
	return n
}
