package engine

import (
	"context"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/simkernel/internal/trace"
)

// Recorder receives one record per hand-off from the manager to a process.
// Implemented by store.RunRecorder (persistent) and harness collectors.
type Recorder interface {
	RecordEvent(ctx context.Context, rec trace.Record) error
}

// EventManager owns the ordered event queue and the current tick, and drives
// the main loop.
//
// Thread-safety model:
//   - Schedule(), Cancel(), Interrupt(), CurrentTick(): safe from any goroutine
//   - Run(), RunNext(), RunUntil(): one driver at a time (ALREADY_RUNNING)
//   - Wait(), WaitUntil(), Start(): only from the target's context
//
// INVARIANTS:
//   - currentTick never decreases
//   - currentTick changes only while no process is ACTIVE
//   - at most one process is ACTIVE at any instant
type EventManager struct {
	mu          sync.Mutex // Manager lock: queue, currentTick, conditions, lifecycle
	queue       *eventQueue
	seq         Sequence // Insertion order for tie-breaks
	currentTick int64
	conds       []*condWaiter // Registration order
	condIndex   map[*Process]*condWaiter
	timeScale   TimeScale
	running     bool
	closed      bool

	pool   *Pool
	yield  chan struct{} // Signalled when control returns to the manager
	budget *BudgetEnforcer

	logger   *slog.Logger
	recorder Recorder
	tracer   oteltrace.Tracer

	poolSoftMax    int
	requestedScale *float64 // WithTimeScale value, validated in New
	recordSeq      int64    // Driver goroutine only

	dispatched atomic.Int64
	failures   atomic.Int64
	audits     atomic.Int64
}

// condWaiter is a process registered against the condition set.
type condWaiter struct {
	proc *Process
	cond func() bool
}

// Option configures an EventManager.
type Option func(*EventManager)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(em *EventManager) {
		if logger != nil {
			em.logger = logger
		}
	}
}

// WithPoolSoftMax sets the idle-pool hint used by Pool.Trim.
func WithPoolSoftMax(n int) Option {
	return func(em *EventManager) {
		em.poolSoftMax = n
	}
}

// WithMaxEvents bounds the number of events one manager dispatches.
// Default: 0 (unlimited).
func WithMaxEvents(n int) Option {
	return func(em *EventManager) {
		em.budget = NewBudgetEnforcer(n)
	}
}

// WithTimeScale sets the ticks-per-hour factor. Invalid values are ignored
// with a warning on the configured logger, whatever the option order; use
// SetSimTimeScale to get the error.
func WithTimeScale(ticksPerHour float64) Option {
	return func(em *EventManager) {
		em.requestedScale = &ticksPerHour
	}
}

// WithRecorder sets the sink for executed-event records.
func WithRecorder(r Recorder) Option {
	return func(em *EventManager) {
		em.recorder = r
	}
}

// WithTracer sets the OpenTelemetry tracer used for per-event spans.
// Default: a no-op tracer.
func WithTracer(t oteltrace.Tracer) Option {
	return func(em *EventManager) {
		if t != nil {
			em.tracer = t
		}
	}
}

// New creates an EventManager at tick 0 with an empty queue.
func New(opts ...Option) *EventManager {
	ts, _ := NewTimeScale(DefaultTicksPerHour)
	em := &EventManager{
		queue:     newEventQueue(),
		condIndex: make(map[*Process]*condWaiter),
		timeScale: ts,
		yield:     make(chan struct{}, 1),
		budget:    NewBudgetEnforcer(0),
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("simkernel/engine"),
	}

	for _, opt := range opts {
		opt(em)
	}
	if em.requestedScale != nil {
		if ts, err := NewTimeScale(*em.requestedScale); err != nil {
			em.logger.Warn("ignoring invalid time scale", "error", err)
		} else {
			em.timeScale = ts
		}
	}

	em.pool = NewPool(em.poolSoftMax, em.logger)
	return em
}

// Schedule queues target to run delay ticks from now.
//
// Returns the Event handle for Cancel. A negative delay, a delay that
// overflows the tick range or a nil target is rejected without touching
// the queue.
//
// Thread-safe: may be called from any goroutine, including running targets.
func (em *EventManager) Schedule(delay int64, priority int, target ProcessTarget) (*Event, error) {
	em.mu.Lock()
	if em.closed {
		err := em.closedErrorLocked()
		em.mu.Unlock()
		return nil, err
	}
	if err := checkDelay(delay, em.currentTick); err != nil {
		em.mu.Unlock()
		return nil, err
	}
	if target == nil {
		tick := em.currentTick
		em.mu.Unlock()
		return nil, &RuntimeError{Code: ErrCodeNilTarget, Message: "target is nil", Tick: tick}
	}
	ev := em.insertLocked(delay, priority, target)
	em.mu.Unlock()

	// Description is model code; it runs outside the manager lock.
	if em.logger.Enabled(context.Background(), slog.LevelDebug) {
		em.logger.Debug("event scheduled",
			"target", target.Description(),
			"tick", ev.addedTick,
			"sched_tick", ev.schedTick,
			"priority", priority,
			"seq", ev.seq,
		)
	}
	return ev, nil
}

func (em *EventManager) insertLocked(delay int64, priority int, target ProcessTarget) *Event {
	ev := newEvent(em.currentTick, em.currentTick+delay, priority, em.seq.Next(), target)
	em.queue.push(ev)
	return ev
}

// Cancel removes a pending event. Returns false if the event has already
// executed or been cancelled.
func (em *EventManager) Cancel(ev *Event) bool {
	if ev == nil {
		return false
	}
	if _, internal := ev.target.(*resumeTarget); internal {
		return false
	}
	em.mu.Lock()
	removed := em.queue.remove(ev)
	em.mu.Unlock()
	if !removed {
		return false
	}
	em.logger.Debug("event cancelled", "target", ev.Description(), "sched_tick", ev.schedTick, "seq", ev.seq)
	return true
}

// IsPending reports whether the event is still queued.
func (em *EventManager) IsPending(ev *Event) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.queue.contains(ev)
}

// Interrupt flags a parked process for termination. The process unwinds its
// target the next time it is resumed, instead of continuing.
//
// Returns NOT_PARKED if the process is active, idle, or owned by another
// manager.
func (em *EventManager) Interrupt(p *Process) error {
	if p == nil {
		return &RuntimeError{Code: ErrCodeNotParked, Message: "process is nil", Tick: em.CurrentTick()}
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	if p.manager() != em || !p.TestFlag(waitFlags) {
		return newNotParkedError(p, em.currentTick)
	}
	p.setFlag(FlagTerminate)
	em.logger.Debug("process interrupted", "process", p.name, "tick", em.currentTick)
	return nil
}

// CurrentTick returns the current virtual time.
func (em *EventManager) CurrentTick() int64 {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.currentTick
}

// Pending returns the number of queued events.
func (em *EventManager) Pending() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.queue.Len()
}

// SetSimTimeScale sets the ticks-per-hour factor used by TicksToSeconds.
func (em *EventManager) SetSimTimeScale(ticksPerHour float64) error {
	ts, err := NewTimeScale(ticksPerHour)
	if err != nil {
		return err
	}
	em.mu.Lock()
	em.timeScale = ts
	em.mu.Unlock()
	return nil
}

// TimeScale returns the current scale.
func (em *EventManager) TimeScale() TimeScale {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.timeScale
}

// SimTimeFactor returns ticks per hour.
func (em *EventManager) SimTimeFactor() float64 {
	return em.TimeScale().TicksPerHour()
}

// TicksToSeconds converts ticks to seconds with the current scale.
func (em *EventManager) TicksToSeconds(ticks int64) float64 {
	return em.TimeScale().TicksToSeconds(ticks)
}

// EventTolerance returns the duration of one tick in hours.
func (em *EventManager) EventTolerance() float64 {
	return em.TimeScale().EventTolerance()
}

// Pool returns the manager's process pool.
func (em *EventManager) Pool() *Pool {
	return em.pool
}

// Run executes events until the queue is empty or ctx is cancelled.
//
// Blocks the calling goroutine. Returns nil when the queue drains,
// ctx.Err() on cancellation, or BudgetExceededError.
func (em *EventManager) Run(ctx context.Context) error {
	return em.RunUntil(ctx, math.MaxInt64)
}

// RunUntil executes every event scheduled at or before endTick, then
// advances the clock to endTick. Later events stay queued.
func (em *EventManager) RunUntil(ctx context.Context, endTick int64) error {
	if err := em.begin(); err != nil {
		return err
	}
	defer em.end()

	em.logger.Info("event manager starting", "tick", em.CurrentTick(), "pending", em.Pending())

	for {
		if err := ctx.Err(); err != nil {
			em.logger.Info("event manager stopping: context cancelled", "tick", em.CurrentTick())
			return err
		}
		ok, err := em.step(ctx, endTick)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}

	if endTick != math.MaxInt64 {
		em.mu.Lock()
		if endTick > em.currentTick {
			em.currentTick = endTick
		}
		em.mu.Unlock()
	}

	em.logger.Info("event manager idle",
		"tick", em.CurrentTick(),
		"pending", em.Pending(),
		"dispatched", em.dispatched.Load(),
	)
	return nil
}

// RunNext executes a single event. Returns false when the queue is empty.
func (em *EventManager) RunNext(ctx context.Context) (bool, error) {
	if err := em.begin(); err != nil {
		return false, err
	}
	defer em.end()
	return em.step(ctx, math.MaxInt64)
}

func (em *EventManager) begin() error {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		return em.closedErrorLocked()
	}
	if em.running {
		return &RuntimeError{Code: ErrCodeAlreadyRunning, Message: "event loop already has a driver", Tick: em.currentTick}
	}
	em.running = true
	return nil
}

func (em *EventManager) end() {
	em.mu.Lock()
	em.running = false
	em.mu.Unlock()
}

func (em *EventManager) closedErrorLocked() *RuntimeError {
	return &RuntimeError{Code: ErrCodeClosed, Message: "event manager is shut down", Tick: em.currentTick}
}

// step pops and executes the earliest event at or before limit, then lets
// satisfied condition waiters run.
// CRITICAL: called only from the driver goroutine.
func (em *EventManager) step(ctx context.Context, limit int64) (bool, error) {
	em.mu.Lock()
	next, ok := em.queue.peek()
	if !ok || next.schedTick > limit {
		em.mu.Unlock()
		return false, nil
	}
	if err := em.budget.Check(next.schedTick); err != nil {
		em.mu.Unlock()
		em.logger.Error("event budget exceeded",
			"tick", next.schedTick,
			"limit", em.budget.MaxEvents(),
			"target", next.Description(),
		)
		return false, err
	}
	ev, _ := em.queue.pop()
	em.currentTick = ev.schedTick
	em.mu.Unlock()

	em.dispatch(ctx, ev)
	em.runConditions(ctx)
	return true, nil
}

// dispatch hands control to the process that runs ev and blocks until
// control comes back.
func (em *EventManager) dispatch(ctx context.Context, ev *Event) {
	ctx, span := em.tracer.Start(ctx, "engine.dispatch", oteltrace.WithAttributes(
		attribute.Int64("sim.tick", ev.schedTick),
		attribute.Int("sim.priority", ev.priority),
		attribute.Int64("sim.seq", ev.seq),
		attribute.String("sim.target", ev.Description()),
	))
	defer span.End()

	em.dispatched.Add(1)

	if rt, ok := ev.target.(*resumeTarget); ok {
		em.record(ctx, trace.KindResume, ev.addedTick, ev.schedTick, ev.priority, ev.Description())
		em.resume(rt.proc)
	} else {
		em.record(ctx, trace.KindDispatch, ev.addedTick, ev.schedTick, ev.priority, ev.Description())
		em.startProcess(ctx, nil, ev.target)
	}
	<-em.yield
}

// startProcess binds target to an idle process and wakes it. next, when
// non-nil, is the process that receives control on the new process's first
// yield.
func (em *EventManager) startProcess(ctx context.Context, next *Process, target ProcessTarget) *Process {
	p := em.pool.acquire()
	p.bind(ctx, em, next, target)

	em.mu.Lock()
	if next != nil {
		next.clearFlag(FlagActive)
	}
	p.activate()
	em.mu.Unlock()

	p.wake <- struct{}{}
	return p
}

// resume wakes a parked process.
func (em *EventManager) resume(p *Process) {
	em.mu.Lock()
	p.activate()
	em.mu.Unlock()
	p.wake <- struct{}{}
}

// handOff returns control to next, or to the manager when next is nil.
func (em *EventManager) handOff(next *Process) {
	if next != nil {
		em.resume(next)
		return
	}
	em.yield <- struct{}{}
}

// executeTarget runs a bound target on p and returns p to the pool.
// Called on p's goroutine.
func (em *EventManager) executeTarget(ctx context.Context, p *Process, target ProcessTarget) {
	em.runTarget(ctx, p, target)

	terminated := p.TestFlag(FlagTerminate)
	if em.releaseCondition(p) && !terminated {
		em.auditWaitUntil(p, "completed")
	}

	next := p.getAndClearNext()
	p.reset()
	// Back in the pool before control moves on, so the next allocation
	// reuses this process.
	p.pool.release(p)
	em.handOff(next)
}

// runTarget executes the target, containing panics so the worker always
// returns to a consistent state.
func (em *EventManager) runTarget(ctx context.Context, p *Process, target ProcessTarget) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if t, ok := r.(processTerminated); ok {
			em.logger.Debug("process unwound", "process", p.name, "target", target.Description(), "reason", t.String())
			return
		}
		em.failures.Add(1)
		em.logger.Error("process target failed",
			"process", p.name,
			"target", target.Description(),
			"tick", em.CurrentTick(),
			"panic", r,
			"stack", string(debug.Stack()),
		)
	}()

	target.Execute(ctx)
}

// registerCondition adds p to the condition set, or replaces its predicate
// if it is already registered.
func (em *EventManager) registerConditionLocked(p *Process, cond func() bool) {
	if w, ok := em.condIndex[p]; ok {
		w.cond = cond
		return
	}
	w := &condWaiter{proc: p, cond: cond}
	em.conds = append(em.conds, w)
	em.condIndex[p] = w
}

// releaseCondition removes p from the condition set. Returns true if p was
// registered.
func (em *EventManager) releaseCondition(p *Process) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.releaseConditionLocked(p)
}

func (em *EventManager) releaseConditionLocked(p *Process) bool {
	if _, ok := em.condIndex[p]; !ok {
		return false
	}
	delete(em.condIndex, p)
	for i, w := range em.conds {
		if w.proc == p {
			em.conds = append(em.conds[:i], em.conds[i+1:]...)
			break
		}
	}
	return true
}

func (em *EventManager) isConditionRegistered(p *Process) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	_, ok := em.condIndex[p]
	return ok
}

// auditWaitUntil reports a process that left a condition wait without
// WaitUntilEnded. Non-fatal: the run continues.
func (em *EventManager) auditWaitUntil(p *Process, at string) {
	em.audits.Add(1)
	em.logger.Warn("AUDIT - waitUntil without waitUntilEnded",
		"process", p.name,
		"target", p.Description(),
		"at", at,
		"tick", em.CurrentTick(),
		"stack", string(debug.Stack()),
	)
}

// runConditions resumes condition waiters whose predicate holds, one at a
// time in registration order, until a full pass finds none.
// CRITICAL: called only from the driver goroutine with no process ACTIVE.
func (em *EventManager) runConditions(ctx context.Context) {
	for {
		p := em.nextSatisfiedWaiter()
		if p == nil {
			return
		}
		tick := em.CurrentTick()
		em.dispatched.Add(1)
		em.record(ctx, trace.KindCondition, tick, tick, 0, p.Description())
		em.resume(p)
		<-em.yield
	}
}

func (em *EventManager) nextSatisfiedWaiter() *Process {
	em.mu.Lock()
	waiters := make([]condWaiter, 0, len(em.conds))
	for _, w := range em.conds {
		if w.proc.TestFlag(FlagCondWait) {
			waiters = append(waiters, *w)
		}
	}
	em.mu.Unlock()

	// Predicates are model code: evaluate without holding the manager lock.
	for _, w := range waiters {
		if em.evalCondition(w) {
			return w.proc
		}
	}
	return nil
}

func (em *EventManager) evalCondition(w condWaiter) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			em.logger.Error("wait condition panicked",
				"process", w.proc.name,
				"target", w.proc.Description(),
				"panic", r,
			)
			ok = false
		}
	}()
	return w.cond()
}

func (em *EventManager) record(ctx context.Context, kind trace.Kind, added, sched int64, priority int, desc string) {
	if em.recorder == nil {
		return
	}
	em.recordSeq++
	rec := trace.Record{
		Seq:         em.recordSeq,
		AddedTick:   added,
		SchedTick:   sched,
		Priority:    priority,
		Kind:        kind,
		Description: desc,
	}
	// A failing sink is logged and the run continues.
	if err := em.recorder.RecordEvent(ctx, rec); err != nil {
		em.logger.Error("record event failed", "error", err, "seq", rec.Seq, "kind", kind)
	}
}

// Shutdown terminates every parked process, discards pending events, and
// releases idle workers. The manager cannot be used afterwards.
//
// Returns ALREADY_RUNNING if a driver is executing events.
func (em *EventManager) Shutdown() error {
	em.mu.Lock()
	if em.closed {
		em.mu.Unlock()
		return nil
	}
	if em.running {
		em.mu.Unlock()
		return &RuntimeError{Code: ErrCodeAlreadyRunning, Message: "cannot shut down while running", Tick: em.currentTick}
	}
	em.closed = true
	pending := em.queue.drain()

	var parked []*Process
	for _, ev := range pending {
		if rt, ok := ev.target.(*resumeTarget); ok {
			parked = append(parked, rt.proc)
		}
	}
	for _, w := range em.conds {
		if w.proc.TestFlag(FlagCondWait) {
			parked = append(parked, w.proc)
		}
	}
	for _, p := range parked {
		p.setFlag(FlagTerminate)
	}
	em.mu.Unlock()

	for _, p := range parked {
		em.resume(p)
		<-em.yield
	}
	em.pool.shutdown()

	em.logger.Info("event manager shut down",
		"tick", em.CurrentTick(),
		"discarded", len(pending),
		"terminated", len(parked),
	)
	return nil
}

// Stats is a snapshot of manager counters.
type Stats struct {
	CurrentTick int64
	Pending     int
	Dispatched  int64 // Hand-offs from the manager (events + condition wakeups)
	Failures    int64 // Targets that panicked
	Audits      int64 // Missing WaitUntilEnded detections
	CondWaiters int
	Pool        PoolStats
}

// Stats returns a snapshot of manager counters.
func (em *EventManager) Stats() Stats {
	em.mu.Lock()
	s := Stats{
		CurrentTick: em.currentTick,
		Pending:     em.queue.Len(),
		CondWaiters: len(em.conds),
	}
	em.mu.Unlock()

	s.Dispatched = em.dispatched.Load()
	s.Failures = em.failures.Load()
	s.Audits = em.audits.Load()
	s.Pool = em.pool.Stats()
	return s
}

// ActiveCount returns the number of processes currently flagged ACTIVE.
func (em *EventManager) ActiveCount() int {
	return em.pool.countFlag(FlagActive)
}
