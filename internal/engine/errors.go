package engine

import (
	"errors"
	"fmt"
	"math"
)

// RuntimeError represents a caller-contract violation detected by the kernel.
//
// Runtime errors include:
//   - Negative delay: Schedule or Wait called with delay < 0
//   - Tick overflow: currentTick + delay does not fit in an int64
//   - Nil target/condition: nothing to execute or evaluate
//   - Not parked: Interrupt on a process that is not waiting
//   - Invalid time scale: ticks-per-hour <= 0
//   - Already running / closed: misuse of the manager lifecycle
//
// These are defects in the caller; the offending operation is rejected and
// no kernel state is mutated.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Tick is the manager's current tick when the error was detected.
	Tick int64

	// Process names the process involved, if any.
	Process string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNegativeDelay indicates a schedule or wait with delay < 0.
	ErrCodeNegativeDelay RuntimeErrorCode = "NEGATIVE_DELAY"

	// ErrCodeTickOverflow indicates a delay that would move the scheduled
	// tick past math.MaxInt64.
	ErrCodeTickOverflow RuntimeErrorCode = "TICK_OVERFLOW"

	// ErrCodeNilTarget indicates a nil ProcessTarget.
	ErrCodeNilTarget RuntimeErrorCode = "NIL_TARGET"

	// ErrCodeNilCondition indicates WaitUntil was called without a predicate.
	ErrCodeNilCondition RuntimeErrorCode = "NIL_CONDITION"

	// ErrCodeNotParked indicates Interrupt on a process that is not waiting.
	ErrCodeNotParked RuntimeErrorCode = "NOT_PARKED"

	// ErrCodeInvalidTimeScale indicates a non-positive ticks-per-hour value.
	ErrCodeInvalidTimeScale RuntimeErrorCode = "INVALID_TIME_SCALE"

	// ErrCodeAlreadyRunning indicates a second driver for the event loop.
	ErrCodeAlreadyRunning RuntimeErrorCode = "ALREADY_RUNNING"

	// ErrCodeClosed indicates use of a manager after Shutdown.
	ErrCodeClosed RuntimeErrorCode = "MANAGER_CLOSED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Process != "" {
		return fmt.Sprintf("%s: %s (tick=%d, process=%s)", e.Code, e.Message, e.Tick, e.Process)
	}
	return fmt.Sprintf("%s: %s (tick=%d)", e.Code, e.Message, e.Tick)
}

// IsNegativeDelayError returns true if the error is a negative delay error.
// Uses errors.As to handle wrapped errors.
func IsNegativeDelayError(err error) bool {
	return hasCode(err, ErrCodeNegativeDelay)
}

// IsTickOverflowError returns true if a delay was rejected because the
// scheduled tick would overflow.
func IsTickOverflowError(err error) bool {
	return hasCode(err, ErrCodeTickOverflow)
}

// IsNotParkedError returns true if the error reports an Interrupt on a
// process that was not waiting.
func IsNotParkedError(err error) bool {
	return hasCode(err, ErrCodeNotParked)
}

// IsClosedError returns true if the manager had already been shut down.
func IsClosedError(err error) bool {
	return hasCode(err, ErrCodeClosed)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newNegativeDelayError(delay, tick int64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNegativeDelay,
		Message: "delay must be >= 0",
		Tick:    tick,
		Details: map[string]string{
			"delay": fmt.Sprintf("%d", delay),
		},
	}
}

// checkDelay rejects a delay that is negative or that would overflow the
// scheduled tick.
func checkDelay(delay, tick int64) *RuntimeError {
	if delay < 0 {
		return newNegativeDelayError(delay, tick)
	}
	if delay > math.MaxInt64-tick {
		return &RuntimeError{
			Code:    ErrCodeTickOverflow,
			Message: "scheduled tick overflows int64",
			Tick:    tick,
			Details: map[string]string{
				"delay": fmt.Sprintf("%d", delay),
			},
		}
	}
	return nil
}

func newNotParkedError(p *Process, tick int64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNotParked,
		Message: "process is not waiting",
		Tick:    tick,
		Process: p.Name(),
	}
}

// ProcessError reports a process-only operation invoked from a context that
// does not belong to an active pooled process.
//
// This is a programming error, not a recoverable condition. It is raised
// with panic, mirroring how the runtime reports misuse such as closing a
// closed channel.
type ProcessError struct {
	Op     string
	Reason string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("engine.%s: %s", e.Op, e.Reason)
}
