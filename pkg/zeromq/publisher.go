package zeromq

import (
	"github.com/open-teleop/rover/domain/actuator"
	"github.com/open-teleop/rover/domain/safety"
	"github.com/open-teleop/rover/domain/teleop"
	"github.com/open-teleop/rover/pkg/log"
)

// Status topics
const (
	TopicSafetyTransition = "safety.transition"
	TopicLinkStatus       = "link.status"
	TopicActuatorStatus   = "actuator.status"
)

// Envelope types for published messages
const (
	MsgTypeTransition  = "TRANSITION"
	MsgTypeLinkStatus  = "LINK_STATUS"
	MsgTypeMotorStatus = "MOTOR_STATUS"
)

// JSONPublisher publishes typed envelopes on a topic.
type JSONPublisher interface {
	PublishJSON(topic string, messageType string, data interface{}) error
}

// StatusPublisher pushes safety transitions, link health and actuator
// events to subscribers.
type StatusPublisher struct {
	publisher JSONPublisher
	logger    log.Logger
}

// NewStatusPublisher creates a new status publisher
func NewStatusPublisher(publisher JSONPublisher, logger log.Logger) *StatusPublisher {
	return &StatusPublisher{publisher: publisher, logger: logger}
}

// PublishTransition publishes a safety state change.
func (p *StatusPublisher) PublishTransition(t safety.Transition) {
	p.publish(TopicSafetyTransition, MsgTypeTransition, t)
}

// PublishLinkStatus publishes the session status on a health change.
func (p *StatusPublisher) PublishLinkStatus(st teleop.Status) {
	p.publish(TopicLinkStatus, MsgTypeLinkStatus, st)
}

// Report publishes an actuator event. It implements actuator.Reporter.
func (p *StatusPublisher) Report(e actuator.Event) {
	p.publish(TopicActuatorStatus, MsgTypeMotorStatus, e)
}

func (p *StatusPublisher) publish(topic, msgType string, data interface{}) {
	if err := p.publisher.PublishJSON(topic, msgType, data); err != nil {
		p.logger.Debugf("Failed to publish %s: %v", topic, err)
	}
}

// AttachSession subscribes the publisher to a session's transitions and
// health changes.
func (p *StatusPublisher) AttachSession(session *teleop.Session) {
	session.Safety().OnTransition(p.PublishTransition)
	session.OnHealthChange(p.PublishLinkStatus)
}
