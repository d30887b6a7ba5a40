package engine

import "fmt"

// DefaultTicksPerHour gives one tick per millisecond of simulated time.
const DefaultTicksPerHour = 3_600_000.0

// TimeScale converts integer ticks to real-valued seconds.
//
// The scale is reporting-only: event ordering is decided by integer ticks and
// priorities and never consults it.
type TimeScale struct {
	ticksPerHour   float64
	secondsPerTick float64
}

// NewTimeScale returns a scale for the given number of ticks per simulated
// hour. The value must be positive.
func NewTimeScale(ticksPerHour float64) (TimeScale, error) {
	if !(ticksPerHour > 0) {
		return TimeScale{}, &RuntimeError{
			Code:    ErrCodeInvalidTimeScale,
			Message: "ticks per hour must be > 0",
			Details: map[string]string{
				"ticks_per_hour": fmt.Sprintf("%g", ticksPerHour),
			},
		}
	}
	return TimeScale{
		ticksPerHour:   ticksPerHour,
		secondsPerTick: 3600.0 / ticksPerHour,
	}, nil
}

// TicksPerHour returns the configured factor.
func (ts TimeScale) TicksPerHour() float64 { return ts.ticksPerHour }

// TicksPerSecond returns ticksPerHour / 3600.
func (ts TimeScale) TicksPerSecond() float64 { return ts.ticksPerHour / 3600.0 }

// TicksToSeconds returns the number of seconds represented by ticks.
func (ts TimeScale) TicksToSeconds(ticks int64) float64 {
	return float64(ticks) * ts.secondsPerTick
}

// EventTolerance is the smallest representable time step, in hours.
func (ts TimeScale) EventTolerance() float64 {
	return 1.0 / ts.ticksPerHour
}
