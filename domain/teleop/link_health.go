package teleop

import (
	"sync/atomic"
	"time"
)

// LinkHealth records when a command last left the socket successfully.
// Only the send path writes it. The stored time keeps its monotonic clock
// reading, so wall clock steps do not change Age.
type LinkHealth struct {
	lastDispatch atomic.Pointer[time.Time]
}

// NewLinkHealth starts the clock at start so the watchdog allows one full
// timeout for the first send.
func NewLinkHealth(start time.Time) *LinkHealth {
	h := &LinkHealth{}
	h.MarkSent(start)
	return h
}

// MarkSent records a successful send at t.
func (h *LinkHealth) MarkSent(t time.Time) {
	h.lastDispatch.Store(&t)
}

// Last returns the last successful send time.
func (h *LinkHealth) Last() time.Time {
	if t := h.lastDispatch.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Age returns how long ago the last successful send happened. A send
// recorded after now, as when a poll races the send path, has age zero.
func (h *LinkHealth) Age(now time.Time) time.Duration {
	age := now.Sub(h.Last())
	if age < 0 {
		return 0
	}
	return age
}

// Alive reports whether a send succeeded within timeout of now.
func (h *LinkHealth) Alive(now time.Time, timeout time.Duration) bool {
	return h.Age(now) <= timeout
}
