package api

import (
	"errors"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/rover/domain/teleop"
	customlog "github.com/open-teleop/rover/pkg/log"
)

// ManualControl receives operator joystick input.
type ManualControl interface {
	SetManual(x, y float64)
	ReleaseManual()
}

// RegisterWebSocketRoutes mounts /ws/control and /ws/detections.
func RegisterWebSocketRoutes(app fiber.Router, logger customlog.Logger, control ManualControl, submit teleop.FrameSubmitter) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/control", websocket.New(func(conn *websocket.Conn) {
		ControlWebSocketHandler(conn, logger, control)
	}))
	app.Get("/ws/detections", websocket.New(func(conn *websocket.Conn) {
		DetectionsWebSocketHandler(conn, logger, submit)
	}))
}

// ControlWebSocketHandler applies joystick messages as manual intent. The
// manual input is released when the socket closes.
func ControlWebSocketHandler(conn *websocket.Conn, logger customlog.Logger, control ManualControl) {
	logger.Infof("Control WebSocket connected: %s", conn.RemoteAddr())
	defer func() {
		control.ReleaseManual()
		logger.Infof("Control WebSocket disconnected: %s", conn.RemoteAddr())
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			logClose(logger, "Control", err)
			return
		}
		if mt != websocket.TextMessage {
			logger.Infof("Ignoring non-text Control WS message type: %d", mt)
			continue
		}

		in, err := ParseControl(msg)
		if err != nil {
			logger.Warnf("Rejected control message: %v", err)
			continue
		}
		if in.Released {
			control.ReleaseManual()
			continue
		}
		control.SetManual(in.X, in.Y)
	}
}

// DetectionsWebSocketHandler forwards detection frames to the processing pool.
func DetectionsWebSocketHandler(conn *websocket.Conn, logger customlog.Logger, submit teleop.FrameSubmitter) {
	logger.Infof("Detections WebSocket connected: %s", conn.RemoteAddr())
	var dropped int

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			logClose(logger, "Detections", err)
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !submit(msg, time.Now()) {
			dropped++
		}
	}
	logger.Infof("Detections WebSocket disconnected: %s (%d frames dropped)", conn.RemoteAddr(), dropped)
}

func logClose(logger customlog.Logger, name string, err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
		logger.Errorf("%s WS read error: %v", name, err)
		return
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		logger.Infof("%s WS connection reset", name)
		return
	}
	logger.Debugf("%s WS connection closed: %v", name, err)
}
