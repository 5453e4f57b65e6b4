package processing

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/open-teleop/rover/domain/teleop"
	customlog "github.com/open-teleop/rover/pkg/log"
)

// TopicDetections carries detector output frames.
const TopicDetections = "teleop.tracking.detections"

// DetectionTracker receives decoded detection frames.
type DetectionTracker interface {
	UpdateDetections(frame teleop.DetectionFrame, receivedAt time.Time) bool
}

// DetectionProcessor decodes detection frames and feeds the tracker.
type DetectionProcessor struct {
	logger  customlog.Logger
	tracker DetectionTracker
}

// NewDetectionProcessor creates a new detection processor
func NewDetectionProcessor(logger customlog.Logger, tracker DetectionTracker) *DetectionProcessor {
	return &DetectionProcessor{
		logger:  logger,
		tracker: tracker,
	}
}

// ProcessMessage decodes a JSON detection frame and hands it to the tracker.
func (p *DetectionProcessor) ProcessMessage(msg *Message) (map[string]interface{}, error) {
	if len(msg.Data) == 0 {
		return nil, fmt.Errorf("empty payload for topic '%s'", msg.Topic)
	}

	var frame teleop.DetectionFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		return nil, fmt.Errorf("failed to parse detection frame: %w", err)
	}
	if err := ValidateFrame(frame); err != nil {
		return nil, err
	}

	accepted := p.tracker.UpdateDetections(frame, msg.ReceivedAt)
	p.logger.Debugf("Processed %d detections (accepted=%t)", len(frame.Detections), accepted)

	return map[string]interface{}{
		"topic":       msg.Topic,
		"received_ns": msg.ReceivedAt.UnixNano(),
		"detections":  len(frame.Detections),
		"accepted":    accepted,
	}, nil
}

// ValidateFrame rejects frames with negative sizes or non-finite values.
func ValidateFrame(frame teleop.DetectionFrame) error {
	if frame.FrameWidth < 0 || !finite(frame.FrameWidth) {
		return fmt.Errorf("invalid frame width %v", frame.FrameWidth)
	}
	for i, d := range frame.Detections {
		if !finite(d.X) || !finite(d.Y) || !finite(d.W) || !finite(d.H) || !finite(d.Confidence) {
			return fmt.Errorf("detection %d has non-finite values", i)
		}
		if d.W < 0 || d.H < 0 {
			return fmt.Errorf("detection %d has negative size", i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CreateProcessorFunc creates a MessageProcessor function for a ProcessingPool
func (p *DetectionProcessor) CreateProcessorFunc() MessageProcessor {
	return p.ProcessMessage
}
