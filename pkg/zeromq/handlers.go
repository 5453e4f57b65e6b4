package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/open-teleop/rover/domain/safety"
	"github.com/open-teleop/rover/domain/teleop"
	"github.com/open-teleop/rover/pkg/log"
)

// SessionControl is the part of a teleop session exposed over ZeroMQ.
type SessionControl interface {
	EmergencyStop() bool
	Reset() error
	SetTrackingEnabled(enabled bool)
	Status() teleop.Status
}

// TrackingData is the payload of a TRACKING request.
type TrackingData struct {
	Enabled *bool `json:"enabled"`
}

// AckData is the payload of an ACK reply.
type AckData struct {
	Status  string       `json:"status"`
	Request string       `json:"request"`
	State   safety.State `json:"state"`
	Message string       `json:"message,omitempty"`
}

// ControlHandler serves operator requests against a session.
type ControlHandler struct {
	session SessionControl
	logger  log.Logger
}

// NewControlHandler creates a handler for ESTOP, RESET, TRACKING and STATUS.
func NewControlHandler(session SessionControl, logger log.Logger) *ControlHandler {
	return &ControlHandler{session: session, logger: logger}
}

// HandleMessage processes one operator request.
func (h *ControlHandler) HandleMessage(msg ZeroMQMessage) (interface{}, string, error) {
	switch msg.Type {
	case MsgTypeEstop:
		triggered := h.session.EmergencyStop()
		h.logger.Infof("ESTOP received over ZeroMQ (newly triggered: %t)", triggered)
		ack := h.ack(msg.Type)
		if !triggered {
			ack.Message = "already stopped"
		}
		return ack, MsgTypeAck, nil

	case MsgTypeReset:
		if err := h.session.Reset(); err != nil {
			if errors.Is(err, safety.ErrResetRejected) || errors.Is(err, safety.ErrNotStopped) {
				return nil, "", &CodedError{Code: 409, Err: err}
			}
			return nil, "", err
		}
		return h.ack(msg.Type), MsgTypeAck, nil

	case MsgTypeTracking:
		var data TrackingData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				return nil, "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
			}
		}
		if data.Enabled == nil {
			return nil, "", fmt.Errorf("%w: TRACKING requires data.enabled", ErrInvalidMessage)
		}
		h.session.SetTrackingEnabled(*data.Enabled)
		return h.ack(msg.Type), MsgTypeAck, nil

	case MsgTypeStatus:
		return h.session.Status(), MsgTypeStatus, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
}

func (h *ControlHandler) ack(request string) AckData {
	return AckData{Status: "OK", Request: request, State: h.session.Status().State}
}

// RegisterControlHandlers registers the operator request handlers.
func RegisterControlHandlers(service *ZeroMQService, session SessionControl, logger log.Logger) {
	handler := NewControlHandler(session, logger)
	for _, t := range []string{MsgTypeEstop, MsgTypeReset, MsgTypeTracking, MsgTypeStatus} {
		service.RegisterHandler(t, handler)
	}
	logger.Infof("Registered ZeroMQ control handlers")
}

// RegisterRobotStatusHandler answers ROBOT_STATUS requests with the last
// actuator report seen by the controller.
func RegisterRobotStatusHandler(service *ZeroMQService, status func() interface{}) {
	service.RegisterHandlerFunc(MsgTypeRobot, func(ZeroMQMessage) (interface{}, string, error) {
		return status(), MsgTypeRobot, nil
	})
}
