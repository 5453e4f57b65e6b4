package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// --- Data Structures for WebSocket Messages ---

// Vector3 defines a standard 3D vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TwistMsg represents a command velocity message, matching geometry_msgs/Twist.
type TwistMsg struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// ControlMsg is one message on the control socket. It is either a joystick
// position {"x","y"}, a release {"released":true}, or a Twist.
type ControlMsg struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Released bool     `json:"released,omitempty"`
	Linear   *Vector3 `json:"linear,omitempty"`
	Angular  *Vector3 `json:"angular,omitempty"`
}

// ManualInput is a decoded control message: X is turn, Y is forward.
type ManualInput struct {
	X, Y     float64
	Released bool
}

var errEmptyControl = errors.New("control message has neither x/y, released nor twist fields")

// ParseControl decodes a control socket message. Twist angular.z is
// positive to the left, so turn is its negation.
func ParseControl(data []byte) (ManualInput, error) {
	var msg ControlMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return ManualInput{}, fmt.Errorf("invalid control message: %w", err)
	}

	var in ManualInput
	switch {
	case msg.Released:
		return ManualInput{Released: true}, nil
	case msg.X != nil || msg.Y != nil:
		if msg.X != nil {
			in.X = *msg.X
		}
		if msg.Y != nil {
			in.Y = *msg.Y
		}
	case msg.Linear != nil || msg.Angular != nil:
		if msg.Linear != nil {
			in.Y = msg.Linear.X
		}
		if msg.Angular != nil {
			in.X = -msg.Angular.Z
		}
	default:
		return ManualInput{}, errEmptyControl
	}

	if !inUnit(in.X) || !inUnit(in.Y) {
		return ManualInput{}, fmt.Errorf("control values out of range: x=%v y=%v", in.X, in.Y)
	}
	return in, nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= -1 && v <= 1
}
