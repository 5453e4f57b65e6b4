// Package actuator is the robot side of the link: it applies decoded motor
// commands and halts the motors when valid commands stop arriving.
package actuator

import (
	"sync/atomic"
	"time"
)

// Deadline records the arrival time of the last valid command. Only valid
// decoded commands move it. The stored time keeps its monotonic clock
// reading, so wall clock steps do not delay or skip a halt.
type Deadline struct {
	lastValid atomic.Pointer[time.Time]
}

// Mark records a valid command received at t.
func (d *Deadline) Mark(t time.Time) {
	d.lastValid.Store(&t)
}

// Last returns the arrival time of the last valid command, or the zero time.
func (d *Deadline) Last() time.Time {
	if t := d.lastValid.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Expired reports whether no valid command arrived within timeout of now.
// A deadline that was never marked is expired.
func (d *Deadline) Expired(now time.Time, timeout time.Duration) bool {
	last := d.Last()
	return last.IsZero() || now.Sub(last) > timeout
}
