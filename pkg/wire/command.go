// Package wire defines the motor command exchanged between the controller and
// the actuator, and the codecs that put it on the datagram link.
package wire

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxWheel is the largest magnitude a wheel value may carry.
const MaxWheel = 100

var (
	ErrMalformed  = errors.New("malformed command")
	ErrOutOfRange = errors.New("wheel value out of range")
	ErrStale      = errors.New("stale command")
)

// MotorCommand is a normalized left/right wheel pair. Values are percent of
// full speed in [-100, 100].
type MotorCommand struct {
	Left     int
	Right    int
	IssuedAt time.Time
}

// Zero returns a stop command stamped with at.
func Zero(at time.Time) MotorCommand {
	return MotorCommand{IssuedAt: at}
}

// IsZero reports whether both wheels are stopped.
func (c MotorCommand) IsZero() bool {
	return c.Left == 0 && c.Right == 0
}

// Validate returns ErrOutOfRange if either wheel exceeds MaxWheel.
func (c MotorCommand) Validate() error {
	if !inRange(c.Left) || !inRange(c.Right) {
		return fmt.Errorf("%w: left=%d right=%d", ErrOutOfRange, c.Left, c.Right)
	}
	return nil
}

func (c MotorCommand) String() string {
	return fmt.Sprintf("L=%d R=%d", c.Left, c.Right)
}

func inRange(v int) bool {
	return v >= -MaxWheel && v <= MaxWheel
}

// ErrorKind classifies decode failures.
type ErrorKind int

const (
	Malformed ErrorKind = iota + 1
	OutOfRange
	Stale
)

func (k ErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case OutOfRange:
		return "out of range"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// DecodeError is returned by Codec.Decode and CheckFresh. A command that
// produced a DecodeError must never be applied.
type DecodeError struct {
	Kind ErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode failed: " + e.Kind.String()
	}
	return fmt.Sprintf("decode failed (%s): %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches the kind sentinels so callers can use errors.Is(err, ErrStale).
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == Malformed
	case ErrOutOfRange:
		return e.Kind == OutOfRange
	case ErrStale:
		return e.Kind == Stale
	}
	return false
}

func malformed(format string, args ...interface{}) error {
	return &DecodeError{Kind: Malformed, Err: fmt.Errorf(format, args...)}
}

func outOfRange(left, right int) error {
	return &DecodeError{Kind: OutOfRange, Err: fmt.Errorf("left=%d right=%d", left, right)}
}

// CheckFresh rejects a decoded command whose payload timestamp is older than
// maxAge. A zero maxAge or an unstamped command always passes.
func CheckFresh(cmd MotorCommand, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 || cmd.IssuedAt.IsZero() {
		return nil
	}
	if age := now.Sub(cmd.IssuedAt); age > maxAge {
		return &DecodeError{Kind: Stale, Err: fmt.Errorf("age %v exceeds %v", age, maxAge)}
	}
	return nil
}

// Mix converts a forward/turn pair in [-1, 1] into differential wheel values.
// When either wheel would exceed limit, both are scaled down by the same
// factor so the left/right ratio is kept. limit outside (0, 100] means 100.
func Mix(forward, turn float64, limit int) (left, right int) {
	if limit <= 0 || limit > MaxWheel {
		limit = MaxWheel
	}
	forward = Clamp(forward, -1, 1)
	turn = Clamp(turn, -1, 1)

	l := forward*100 + turn*100
	r := forward*100 - turn*100

	peak := math.Max(math.Abs(l), math.Abs(r))
	if peak > float64(limit) {
		scale := float64(limit) / peak
		l *= scale
		r *= scale
	}
	return int(math.Round(l)), int(math.Round(r))
}

// Clamp bounds v to [lo, hi]. NaN maps to 0.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
