// Package system supplies the wall clock the scheduler runs on outside of
// tests.
package system

import "time"

// Clock reads the system time in UTC. Due scores and band timestamps are
// all unix seconds, so every component sees the same zone.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
