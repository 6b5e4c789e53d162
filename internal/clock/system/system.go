// Package system provides clocks for the crawl driver.
package system

import "time"

// Clock reads the wall clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a function to the clock interface.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}

// Stepping returns a clock that starts at start and advances by step on every call.
func Stepping(start time.Time, step time.Duration) Func {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}
