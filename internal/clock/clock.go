// Package clock provides the time port used by the board, agent loops, and
// recovery code. Production uses the wall clock; tests substitute a fake to
// drive heartbeat staleness and scale-down idle windows deterministically.
package clock

import "time"

// Clock yields the current time.
type Clock interface {
	Now() time.Time
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Fake is a settable clock for tests.
type Fake struct {
	T time.Time
}

// Now returns the configured instant.
func (f *Fake) Now() time.Time { return f.T }

// Advance moves the fake clock forward.
func (f *Fake) Advance(d time.Duration) { f.T = f.T.Add(d) }
