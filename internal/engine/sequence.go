package engine

import "sync/atomic"

// Sequence stamps events in scheduling order. Two events with the same
// (schedTick, priority) run in ascending seq, which makes runs repeatable.
//
// The zero value is ready to use; the first call to Next returns 1.
type Sequence struct {
	n atomic.Int64
}

// Next returns a fresh, strictly increasing value.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Last returns the most recent value handed out, or 0.
func (s *Sequence) Last() int64 {
	return s.n.Load()
}
