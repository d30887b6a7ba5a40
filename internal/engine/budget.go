package engine

import (
	"errors"
	"fmt"
)

// BudgetEnforcer counts dispatched events for one manager and enforces a
// maximum.
//
// Models that reschedule themselves forever never drain the queue. The
// budget turns such a run into an error instead of a hang. A limit of 0
// disables enforcement.
type BudgetEnforcer struct {
	maxEvents int // Maximum events per manager (0 = unlimited)
	current   int // Events dispatched so far
}

// NewBudgetEnforcer creates a new budget enforcer with the given limit.
func NewBudgetEnforcer(maxEvents int) *BudgetEnforcer {
	return &BudgetEnforcer{
		maxEvents: maxEvents,
	}
}

// Check increments the event counter and validates against the limit.
//
// Returns BudgetExceededError if the budget is exceeded.
// Called before each event is popped, so an over-budget event stays queued.
func (b *BudgetEnforcer) Check(tick int64) error {
	b.current++
	if b.maxEvents > 0 && b.current > b.maxEvents {
		return &BudgetExceededError{
			Events: b.current,
			Limit:  b.maxEvents,
			Tick:   tick,
		}
	}
	return nil
}

// Reset resets the event counter to 0.
func (b *BudgetEnforcer) Reset() {
	b.current = 0
}

// Current returns the number of events counted.
func (b *BudgetEnforcer) Current() int {
	return b.current
}

// MaxEvents returns the configured limit.
func (b *BudgetEnforcer) MaxEvents() int {
	return b.maxEvents
}

// BudgetExceededError is returned by Run when the event budget is exhausted.
//
// The pending event that would have exceeded the budget is left in the queue.
type BudgetExceededError struct {
	Events int   // Number of events attempted
	Limit  int   // Maximum allowed events
	Tick   int64 // Tick of the event that was refused
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("event budget exceeded at tick %d: %d events > %d limit",
		e.Tick, e.Events, e.Limit)
}

// IsBudgetExceededError returns true if the error is a BudgetExceededError.
// Uses errors.As to handle wrapped errors.
func IsBudgetExceededError(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
