package teleop

import (
	"errors"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/rover/domain/safety"
)

// ManualCommand is a joystick position: X turns (positive right), Y drives
// (positive forward). Both are in [-1, 1].
type ManualCommand struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TrackingRequest toggles autonomous tracking.
type TrackingRequest struct {
	Enabled *bool `json:"enabled"`
}

// FrameSubmitter queues a raw detection frame for processing. It returns
// false when the frame was dropped.
type FrameSubmitter func(data []byte, receivedAt time.Time) bool

// TeleopService exposes a session over HTTP.
type TeleopService struct {
	session     *Session
	submitFrame FrameSubmitter
}

// NewTeleopService creates a new teleop service instance
func NewTeleopService(session *Session, submitFrame FrameSubmitter) *TeleopService {
	return &TeleopService{session: session, submitFrame: submitFrame}
}

// Session returns the session behind the service.
func (s *TeleopService) Session() *Session { return s.session }

// RegisterRoutes mounts the operator endpoints on router.
func (s *TeleopService) RegisterRoutes(router fiber.Router) {
	router.Get("/status", s.StatusHandler)
	router.Post("/estop", s.EmergencyStopHandler)
	router.Post("/estop/reset", s.ResetHandler)
	router.Put("/tracking", s.TrackingHandler)
	router.Post("/manual", s.ManualHandler)
	router.Delete("/manual", s.ReleaseHandler)
	router.Post("/detections", s.DetectionsHandler)
}

// HealthHandler reports liveness of the process and the link health.
func (s *TeleopService) HealthHandler(c *fiber.Ctx) error {
	st := s.session.Status()
	return c.JSON(fiber.Map{
		"status": "ok",
		"health": st.Health,
	})
}

// StatusHandler returns the full session status.
func (s *TeleopService) StatusHandler(c *fiber.Ctx) error {
	return c.JSON(s.session.Status())
}

// EmergencyStopHandler latches the emergency stop.
func (s *TeleopService) EmergencyStopHandler(c *fiber.Ctx) error {
	changed := s.session.EmergencyStop()
	st := s.session.Status()
	return c.JSON(fiber.Map{
		"status":  "stopped",
		"changed": changed,
		"reason":  st.Reason,
	})
}

// ResetHandler clears the emergency stop, or answers 409 with the reason.
func (s *TeleopService) ResetHandler(c *fiber.Ctx) error {
	err := s.session.Reset()
	var rejected *safety.ResetRejectedError
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"status": "normal"})
	case errors.As(err, &rejected):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  "reset rejected",
			"reason": rejected.Reason,
		})
	case errors.Is(err, safety.ErrNotStopped):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return err
	}
}

// TrackingHandler turns autonomous tracking on or off.
func (s *TeleopService) TrackingHandler(c *fiber.Ctx) error {
	var req TrackingRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"enabled\": true|false}",
		})
	}
	s.session.SetTrackingEnabled(*req.Enabled)
	return c.JSON(fiber.Map{"tracking_enabled": *req.Enabled})
}

// ManualHandler sets the joystick position.
func (s *TeleopService) ManualHandler(c *fiber.Ctx) error {
	var cmd ManualCommand
	if err := c.BodyParser(&cmd); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err := ValidateManual(cmd); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.session.SetManual(cmd.X, cmd.Y)
	return c.JSON(fiber.Map{
		"status":  "command received",
		"command": cmd,
	})
}

// ReleaseHandler records a released joystick.
func (s *TeleopService) ReleaseHandler(c *fiber.Ctx) error {
	s.session.ReleaseManual()
	return c.JSON(fiber.Map{"status": "released"})
}

// DetectionsHandler queues a detection frame for the tracking workers.
func (s *TeleopService) DetectionsHandler(c *fiber.Ctx) error {
	if s.submitFrame == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "detection processing not configured",
		})
	}
	// Fiber reuses the body buffer after the handler returns.
	body := append([]byte(nil), c.Body()...)
	accepted := s.submitFrame(body, time.Now())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": accepted})
}

var errManualRange = errors.New("x and y must be within [-1, 1]")

// ValidateManual checks a joystick position is finite and in range.
func ValidateManual(cmd ManualCommand) error {
	for _, v := range []float64{cmd.X, cmd.Y} {
		if math.IsNaN(v) || math.Abs(v) > 1 {
			return errManualRange
		}
	}
	return nil
}
