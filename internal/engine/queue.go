package engine

import "container/heap"

// eventQueue is a min-heap of events ordered by (schedTick, priority, seq).
//
// The queue has no lock of its own: it is owned by the EventManager and every
// access happens under the manager mutex, together with currentTick, so a
// schedTick computed from the current tick is inserted atomically.
//
// An index map supports O(log n) cancellation of arbitrary pending events.
type eventQueue struct {
	events []*Event
	index  map[*Event]int
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]*Event, 0, 64), // Pre-allocate for typical workloads
		index:  make(map[*Event]int),
	}
}

// heap.Interface

func (q *eventQueue) Len() int           { return len(q.events) }
func (q *eventQueue) Less(i, j int) bool { return q.events[i].before(q.events[j]) }

func (q *eventQueue) Swap(i, j int) {
	q.events[i], q.events[j] = q.events[j], q.events[i]
	q.index[q.events[i]] = i
	q.index[q.events[j]] = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*Event)
	q.index[ev] = len(q.events)
	q.events = append(q.events, ev)
}

func (q *eventQueue) Pop() any {
	n := len(q.events)
	ev := q.events[n-1]
	// Nil out the slot so the backing array does not retain the target.
	q.events[n-1] = nil
	q.events = q.events[:n-1]
	delete(q.index, ev)
	return ev
}

// push inserts an event.
func (q *eventQueue) push(ev *Event) {
	heap.Push(q, ev)
}

// peek returns the earliest event without removing it.
func (q *eventQueue) peek() (*Event, bool) {
	if len(q.events) == 0 {
		return nil, false
	}
	return q.events[0], true
}

// pop removes and returns the earliest event.
func (q *eventQueue) pop() (*Event, bool) {
	if len(q.events) == 0 {
		return nil, false
	}
	return heap.Pop(q).(*Event), true
}

// remove deletes a pending event. Returns false if the event is not queued
// (already executed or cancelled).
func (q *eventQueue) remove(ev *Event) bool {
	i, ok := q.index[ev]
	if !ok {
		return false
	}
	heap.Remove(q, i)
	return true
}

// contains reports whether the event is still pending.
func (q *eventQueue) contains(ev *Event) bool {
	_, ok := q.index[ev]
	return ok
}

// drain removes every pending event and returns them in execution order.
func (q *eventQueue) drain() []*Event {
	out := make([]*Event, 0, len(q.events))
	for len(q.events) > 0 {
		out = append(out, heap.Pop(q).(*Event))
	}
	return out
}
