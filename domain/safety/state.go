// Package safety holds the emergency stop state machine shared by the
// command scheduler, the sender watchdog and the operator surfaces.
package safety

import (
	"errors"
	"fmt"
	"time"
)

// State is the process-wide safety state of a session.
type State int

const (
	StateNormal State = iota
	StateEmergencyStopped
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateEmergencyStopped:
		return "EMERGENCY_STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition reasons.
const (
	ReasonManualStop            = "manual stop"
	ReasonLinkTimeout           = "link timeout"
	ReasonSessionClosed         = "session closed"
	ReasonResetRejectedLinkDown = "link still down"
)

var (
	ErrResetRejected = errors.New("reset rejected")
	ErrNotStopped    = errors.New("not emergency stopped")
)

// ResetRejectedError reports why a reset was refused. The state stays
// EMERGENCY_STOPPED.
type ResetRejectedError struct {
	Reason string
}

func (e *ResetRejectedError) Error() string {
	return "reset rejected: " + e.Reason
}

func (e *ResetRejectedError) Is(target error) bool {
	return target == ErrResetRejected
}

// Transition describes one state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Snapshot is a consistent read of the state machine.
type Snapshot struct {
	State  State     `json:"state"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since"`
}
