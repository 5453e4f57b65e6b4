package main

import (
	"time"

	"github.com/open-teleop/rover/pkg/wire"
)

// Step is one leg of the drive test. Speed and Direction are percent, with
// negative direction turning left.
type Step struct {
	Name      string
	Speed     float64
	Direction float64
	Duration  time.Duration
}

// Command returns the wheel command for the step.
func (s Step) Command(at time.Time) wire.MotorCommand {
	left, right := wire.Mix(s.Speed/100, s.Direction/100, wire.MaxWheel)
	return wire.MotorCommand{Left: left, Right: right, IssuedAt: at}
}

// Joystick returns the step as a control socket position.
func (s Step) Joystick() (x, y float64) {
	return s.Direction / 100, s.Speed / 100
}

func stop(name string) Step {
	return Step{Name: name, Duration: time.Second}
}

// DefaultSequence exercises every direction with a stop between legs.
func DefaultSequence() []Step {
	return []Step{
		{Name: "Forward (50% speed)", Speed: 50, Duration: 2 * time.Second},
		stop("Stop"),
		{Name: "Backward (50% speed)", Speed: -50, Duration: 2 * time.Second},
		stop("Stop"),
		{Name: "Turn Left (50% turn)", Direction: -50, Duration: 2 * time.Second},
		stop("Stop"),
		{Name: "Turn Right (50% turn)", Direction: 50, Duration: 2 * time.Second},
		stop("Stop"),
		{Name: "Forward-Right (diagonal)", Speed: 50, Direction: 30, Duration: 2 * time.Second},
		stop("Stop"),
		{Name: "Forward-Left (diagonal)", Speed: 50, Direction: -30, Duration: 2 * time.Second},
		stop("Final Stop"),
	}
}
