// Package system provides a real clock implementation.
package system

import "time"

// Clock implements media.Clock using the wall clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// After waits for d on the wall clock.
func (Clock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
