// Package clock abstracts time so that rolling windows and backoff schedules
// can be driven by a simulated clock in tests.
package clock

import "time"

// Clock reports the current time and provides cancelable timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// System is the wall clock.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// After waits for the duration to elapse and then sends the current time.
func (System) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// OrSystem returns c, or the wall clock when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}
