// Package clock abstracts the monotonic time source the session layer is driven by.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock. time.Now carries a monotonic reading,
// so durations between two values are not affected by clock adjustments.
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// NewManual returns a clock that only moves when Advance is called.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Manual is a clock that is advanced explicitly, used to drive
// sessions deterministically.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
