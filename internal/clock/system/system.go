// Package system provides the clocks that stamp scraped records.
package system

import "time"

// Clock implements harvest.Clock with the wall clock, in UTC and truncated to
// whole seconds.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Fixed implements harvest.Clock with a single instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}
