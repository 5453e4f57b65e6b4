package teleop

import (
	"fmt"

	"github.com/open-teleop/rover/pkg/wire"
)

// Source identifies where a MotionIntent came from.
type Source int

const (
	SourceNone Source = iota
	SourceManual
	SourceTracking
)

func (s Source) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceTracking:
		return "tracking"
	default:
		return "none"
	}
}

// MarshalText renders the source name in JSON payloads.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MotionIntent is a desired forward/turn pair in [-1, 1]. Forward is positive
// ahead, Turn is positive to the right.
type MotionIntent struct {
	Forward float64 `json:"forward"`
	Turn    float64 `json:"turn"`
	Source  Source  `json:"source"`
}

// NoIntent is the zero intent with no source.
var NoIntent = MotionIntent{}

// ManualIntent maps joystick axes onto an intent: x turns, y drives.
func ManualIntent(x, y float64) MotionIntent {
	return MotionIntent{Forward: y, Turn: x, Source: SourceManual}.Normalize()
}

// TrackingIntent builds an intent produced by the tracking steering.
func TrackingIntent(forward, turn float64) MotionIntent {
	return MotionIntent{Forward: forward, Turn: turn, Source: SourceTracking}.Normalize()
}

// Normalize clamps both axes to [-1, 1] and zeroes a sourceless intent.
func (m MotionIntent) Normalize() MotionIntent {
	if m.Source == SourceNone {
		return NoIntent
	}
	m.Forward = wire.Clamp(m.Forward, -1, 1)
	m.Turn = wire.Clamp(m.Turn, -1, 1)
	return m
}

// IsZero reports whether the intent asks for no motion.
func (m MotionIntent) IsZero() bool {
	return m.Forward == 0 && m.Turn == 0
}

func (m MotionIntent) String() string {
	return fmt.Sprintf("%s(forward=%.2f turn=%.2f)", m.Source, m.Forward, m.Turn)
}
