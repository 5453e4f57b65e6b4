// Package diagnostic keeps the latest motor state reported by the actuator
// so the operator side can show what the robot is actually doing.
package diagnostic

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/rover/domain/actuator"
)

// RobotStatus is the last actuator report seen by the controller.
type RobotStatus struct {
	Halted     bool      `json:"halted"`
	HaltReason string    `json:"halt_reason,omitempty"`
	Left       int       `json:"left"`
	Right      int       `json:"right"`
	ReportedAt time.Time `json:"reported_at"`
	ReceivedAt time.Time `json:"received_at"`
	Reports    uint64    `json:"reports"`
}

// DiagnosticService holds robot-side status
type DiagnosticService struct {
	mu     sync.RWMutex
	status RobotStatus
	stale  time.Duration
}

// NewDiagnosticService creates a new diagnostic service instance. Reports
// older than stale are flagged in the HTTP response.
func NewDiagnosticService(stale time.Duration) *DiagnosticService {
	return &DiagnosticService{stale: stale}
}

// Update records an actuator event.
func (s *DiagnosticService) Update(e actuator.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Halted = e.Halted
	s.status.HaltReason = e.Reason
	s.status.Left = e.Left
	s.status.Right = e.Right
	s.status.ReportedAt = e.Timestamp
	s.status.ReceivedAt = time.Now()
	s.status.Reports++
}

// GetStatus returns the current robot status
func (s *DiagnosticService) GetStatus() RobotStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// GetStatusHandler handles API requests for robot status
func (s *DiagnosticService) GetStatusHandler(c *fiber.Ctx) error {
	st := s.GetStatus()
	state := "unknown"
	switch {
	case st.Reports == 0:
	case s.stale > 0 && time.Since(st.ReceivedAt) > s.stale && !st.Halted:
		state = "stale"
	case st.Halted:
		state = "halted"
	default:
		state = "driving"
	}
	return c.JSON(fiber.Map{
		"status": state,
		"robot":  st,
	})
}
