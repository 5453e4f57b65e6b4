package teleop

import (
	"github.com/open-teleop/rover/pkg/wire"
)

// Detection is one labeled box from the object detector. X and W are in the
// same units as the frame width, Y and H are normalized to the frame height.
// The origin is the top-left corner.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
}

// CenterX returns the horizontal center of the box.
func (d Detection) CenterX() float64 {
	return d.X + d.W/2
}

// Area returns the box area in frame units.
func (d Detection) Area() float64 {
	return d.W * d.H
}

// DetectionFrame is one detector result for a video frame.
type DetectionFrame struct {
	FrameWidth float64     `json:"frame_width"`
	Detections []Detection `json:"detections"`
}

// PrimaryTarget returns the detection with the largest area. Confidence does
// not take part in the choice.
func PrimaryTarget(detections []Detection) (Detection, bool) {
	if len(detections) == 0 {
		return Detection{}, false
	}
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Area() > best.Area() {
			best = d
		}
	}
	return best, true
}

// FilterConfidence drops detections below minConfidence.
func FilterConfidence(detections []Detection, minConfidence float64) []Detection {
	if minConfidence <= 0 {
		return detections
	}
	kept := detections[:0:0]
	for _, d := range detections {
		if d.Confidence >= minConfidence {
			kept = append(kept, d)
		}
	}
	return kept
}

// ComputeIntent steers toward the primary target: turn follows the
// horizontal offset of its center, forward slows as the box grows.
// speedScale is the percent of full speed used when the target is tiny.
// It returns nil when there is nothing to follow.
func ComputeIntent(detections []Detection, frameWidth, speedScale float64) *MotionIntent {
	target, ok := PrimaryTarget(detections)
	if !ok || frameWidth <= 0 {
		return nil
	}

	half := frameWidth / 2
	turn := wire.Clamp((target.CenterX()-half)/half, -1, 1)

	area := wire.Clamp((target.W/frameWidth)*target.H, 0, 1)
	scale := wire.Clamp(speedScale, 0, 100) / 100
	forward := (1 - area) * scale

	intent := TrackingIntent(forward, turn)
	return &intent
}
