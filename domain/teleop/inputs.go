package teleop

import (
	"sync"
	"time"
)

// Inputs buffers the latest intent from each source. Writers are the
// operator surfaces and the detection workers; the scheduler reads a
// snapshot every tick.
type Inputs struct {
	mu              sync.RWMutex
	manual          *MotionIntent
	tracking        *MotionIntent
	trackingAt      time.Time
	trackingEnabled bool
}

// NewInputs creates an empty input buffer.
func NewInputs(trackingEnabled bool) *Inputs {
	return &Inputs{trackingEnabled: trackingEnabled}
}

// SetManual stores the joystick position. x turns, y drives.
func (in *Inputs) SetManual(x, y float64) {
	intent := ManualIntent(x, y)
	in.mu.Lock()
	in.manual = &intent
	in.mu.Unlock()
}

// ReleaseManual records a released joystick as a zero manual intent.
func (in *Inputs) ReleaseManual() {
	intent := ManualIntent(0, 0)
	in.mu.Lock()
	in.manual = &intent
	in.mu.Unlock()
}

// SetTracking stores the tracking intent computed from a frame received at
// at; nil clears it. Results older than the stored one are ignored, so
// frames finishing out of order cannot roll the intent back. It reports
// whether the intent was stored.
func (in *Inputs) SetTracking(intent *MotionIntent, at time.Time) bool {
	var stored *MotionIntent
	if intent != nil {
		v := intent.Normalize()
		stored = &v
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.trackingEnabled || at.Before(in.trackingAt) {
		return false
	}
	in.tracking = stored
	in.trackingAt = at
	return true
}

// SetTrackingEnabled turns autonomous tracking on or off. Disabling it
// drops the buffered tracking intent.
func (in *Inputs) SetTrackingEnabled(enabled bool) {
	in.mu.Lock()
	in.trackingEnabled = enabled
	if !enabled {
		in.tracking = nil
	}
	in.mu.Unlock()
}

// TrackingEnabled reports whether tracking intents are accepted.
func (in *Inputs) TrackingEnabled() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.trackingEnabled
}

// Clear zeroes every buffered intent. Registered as an emergency stop hook.
func (in *Inputs) Clear() {
	in.mu.Lock()
	in.manual = nil
	in.tracking = nil
	in.mu.Unlock()
}

// Snapshot returns copies of the buffered intents. The tracking intent is
// nil while tracking is disabled.
func (in *Inputs) Snapshot() (manual, tracking *MotionIntent) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.manual != nil {
		m := *in.manual
		manual = &m
	}
	if in.trackingEnabled && in.tracking != nil {
		tr := *in.tracking
		tracking = &tr
	}
	return manual, tracking
}
