package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// JSON envelope commands understood by the Pi receiver.
const (
	CommandMove = "move"
	CommandStop = "stop"
)

// JSONCodec speaks the receiver's JSON envelope. Encoded payloads carry both
// the explicit wheel pair and the equivalent speed/direction so that older
// receivers which only read speed and direction drive the same wheels.
type JSONCodec struct{}

type jsonCommand struct {
	Command     string  `json:"command"`
	Left        int     `json:"left"`
	Right       int     `json:"right"`
	Speed       float64 `json:"speed"`
	Direction   float64 `json:"direction"`
	TimestampNs int64   `json:"timestamp_ns,omitempty"`
	Timestamp   float64 `json:"timestamp,omitempty"`
}

type jsonEnvelope struct {
	Command     string       `json:"command"`
	Left        *json.Number `json:"left"`
	Right       *json.Number `json:"right"`
	Speed       *float64     `json:"speed"`
	Direction   *float64     `json:"direction"`
	TimestampNs *int64       `json:"timestamp_ns"`
	Timestamp   *float64     `json:"timestamp"`
}

func (JSONCodec) Encode(cmd MotorCommand) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	msg := jsonCommand{
		Command:   CommandMove,
		Left:      cmd.Left,
		Right:     cmd.Right,
		Speed:     float64(cmd.Left+cmd.Right) / 2,
		Direction: float64(cmd.Left-cmd.Right) / 2,
	}
	if cmd.IsZero() {
		msg.Command = CommandStop
	}
	if !cmd.IssuedAt.IsZero() {
		msg.TimestampNs = cmd.IssuedAt.UnixNano()
		msg.Timestamp = float64(msg.TimestampNs) / float64(time.Second)
	}
	return json.Marshal(msg)
}

func (JSONCodec) Decode(data []byte) (MotorCommand, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return MotorCommand{}, malformed("invalid json: %v", err)
	}

	issuedAt := env.issuedAt()
	switch env.Command {
	case CommandStop:
		return Zero(issuedAt), nil
	case CommandMove:
	case "":
		return MotorCommand{}, malformed("missing command")
	default:
		return MotorCommand{}, malformed("unknown command %q", env.Command)
	}

	if env.Left != nil || env.Right != nil {
		if env.Left == nil || env.Right == nil {
			return MotorCommand{}, malformed("move needs both left and right")
		}
		left, err := wheel(*env.Left)
		if err != nil {
			return MotorCommand{}, err
		}
		right, err := wheel(*env.Right)
		if err != nil {
			return MotorCommand{}, err
		}
		if !inRange(left) || !inRange(right) {
			return MotorCommand{}, outOfRange(left, right)
		}
		return MotorCommand{Left: left, Right: right, IssuedAt: issuedAt}, nil
	}

	// Legacy speed/direction form, both in percent.
	if env.Speed == nil && env.Direction == nil {
		return MotorCommand{}, malformed("move without wheel values")
	}
	var speed, direction float64
	if env.Speed != nil {
		speed = *env.Speed
	}
	if env.Direction != nil {
		direction = *env.Direction
	}
	if math.Abs(speed) > MaxWheel || math.Abs(direction) > MaxWheel {
		return MotorCommand{}, outOfRange(int(speed), int(direction))
	}
	if math.IsNaN(speed) || math.IsNaN(direction) {
		return MotorCommand{}, malformed("speed/direction not a number")
	}
	left, right := Mix(speed/100, direction/100, MaxWheel)
	return MotorCommand{Left: left, Right: right, IssuedAt: issuedAt}, nil
}

func (e jsonEnvelope) issuedAt() time.Time {
	if e.TimestampNs != nil {
		return fromUnixNano(*e.TimestampNs)
	}
	if e.Timestamp != nil && *e.Timestamp > 0 {
		sec, frac := math.Modf(*e.Timestamp)
		return time.Unix(int64(sec), int64(frac*float64(time.Second)))
	}
	return time.Time{}
}

func wheel(n json.Number) (int, error) {
	v, err := n.Int64()
	if err != nil {
		return 0, malformed("wheel value %q is not an integer", n.String())
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, &DecodeError{Kind: OutOfRange, Err: fmt.Errorf("wheel value %d", v)}
	}
	return int(v), nil
}
