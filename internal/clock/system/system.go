// Package system provides real clock implementations.
package system

import "time"

// Clock returns UTC wall-clock timestamps for records and logs.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Monotonic returns readings that carry Go's monotonic clock, so durations
// measured between them are immune to wall-clock steps. Use it for budgets.
type Monotonic struct{}

// Now returns the current time including its monotonic reading.
func (Monotonic) Now() time.Time {
	return time.Now()
}

// Since reports the elapsed time since t.
func (Monotonic) Since(t time.Time) time.Duration {
	return time.Since(t)
}
