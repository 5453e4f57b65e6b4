package teleop

import (
	"github.com/open-teleop/rover/domain/safety"
	"github.com/open-teleop/rover/pkg/wire"
)

// Arbiter picks the motion source for each tick and mixes it into wheel
// values.
type Arbiter struct {
	// MaxMagnitude caps each wheel, in percent. Zero means 100.
	MaxMagnitude int
}

// Select applies the precedence rules: an emergency stop yields nothing, a
// non-zero manual intent beats tracking, tracking beats nothing.
func (a Arbiter) Select(manual, tracking *MotionIntent, state safety.State) MotionIntent {
	if state == safety.StateEmergencyStopped {
		return NoIntent
	}
	if manual != nil && !manual.IsZero() {
		return manual.Normalize()
	}
	if tracking != nil {
		return tracking.Normalize()
	}
	return NoIntent
}

// Resolve returns the wheel command for the current inputs. The caller
// stamps IssuedAt.
func (a Arbiter) Resolve(manual, tracking *MotionIntent, state safety.State) wire.MotorCommand {
	intent := a.Select(manual, tracking, state)
	if intent.Source == SourceNone {
		return wire.MotorCommand{}
	}
	left, right := wire.Mix(intent.Forward, intent.Turn, a.MaxMagnitude)
	return wire.MotorCommand{Left: left, Right: right}
}
