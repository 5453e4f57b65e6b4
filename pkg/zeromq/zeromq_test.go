package zeromq

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/rover/domain/actuator"
	"github.com/open-teleop/rover/domain/safety"
	"github.com/open-teleop/rover/domain/teleop"
	"github.com/open-teleop/rover/pkg/config"
	"github.com/open-teleop/rover/pkg/log"
)

type fakeSession struct {
	mu       sync.Mutex
	state    safety.State
	tracking bool
	resetErr error
}

func (f *fakeSession) EmergencyStop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == safety.StateEmergencyStopped {
		return false
	}
	f.state = safety.StateEmergencyStopped
	return true
}

func (f *fakeSession) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.state = safety.StateNormal
	return nil
}

func (f *fakeSession) SetTrackingEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracking = enabled
}

func (f *fakeSession) Status() teleop.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return teleop.Status{SessionID: "test", State: f.state, TrackingEnabled: f.tracking}
}

func newDispatcher(session SessionControl) *MessageDispatcher {
	d := NewMessageDispatcher(log.NewNopLogger())
	h := NewControlHandler(session, log.NewNopLogger())
	for _, t := range []string{MsgTypeEstop, MsgTypeReset, MsgTypeTracking, MsgTypeStatus} {
		d.RegisterHandler(t, h)
	}
	return d
}

func decodeReply(t *testing.T, data []byte) (ZeroMQMessage, map[string]interface{}) {
	t.Helper()
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Invalid reply JSON: %v", err)
	}
	var body map[string]interface{}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			t.Fatalf("Invalid reply data: %v", err)
		}
	}
	return msg, body
}

func TestDispatchControlRequests(t *testing.T) {
	tests := []struct {
		name      string
		resetErr  error
		request   string
		wantType  string
		wantCode  float64
		wantState string
	}{
		{"estop", nil, `{"type":"ESTOP","timestamp":1}`, MsgTypeAck, 0, "EMERGENCY_STOPPED"},
		{"reset rejected", &safety.ResetRejectedError{Reason: "link still down"}, `{"type":"RESET"}`, MsgTypeError, 409, ""},
		{"reset ok", nil, `{"type":"RESET"}`, MsgTypeAck, 0, "NORMAL"},
		{"tracking on", nil, `{"type":"TRACKING","data":{"enabled":true}}`, MsgTypeAck, 0, "NORMAL"},
		{"tracking missing flag", nil, `{"type":"TRACKING","data":{}}`, MsgTypeError, 400, ""},
		{"unknown type", nil, `{"type":"CONFIG_REQUEST"}`, MsgTypeError, 400, ""},
		{"not json", nil, `garbage`, MsgTypeError, 400, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{resetErr: tt.resetErr}
			if tt.name == "reset rejected" || tt.name == "reset ok" {
				session.state = safety.StateEmergencyStopped
			}
			reply, _ := newDispatcher(session).Dispatch([]byte(tt.request))

			msg, body := decodeReply(t, reply)
			if msg.Type != tt.wantType {
				t.Fatalf("Expected reply type %s, got %s (%v)", tt.wantType, msg.Type, body)
			}
			if tt.wantCode != 0 && body["code"] != tt.wantCode {
				t.Errorf("Expected code %v, got %v", tt.wantCode, body["code"])
			}
			if tt.wantState != "" && body["state"] != tt.wantState {
				t.Errorf("Expected state %s, got %v", tt.wantState, body["state"])
			}
		})
	}
}

func TestDispatchStatus(t *testing.T) {
	session := &fakeSession{tracking: true}
	reply, err := newDispatcher(session).Dispatch([]byte(`{"type":"STATUS"}`))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	msg, body := decodeReply(t, reply)
	if msg.Type != MsgTypeStatus {
		t.Fatalf("Expected STATUS reply, got %s", msg.Type)
	}
	if body["session_id"] != "test" || body["tracking_enabled"] != true {
		t.Errorf("Unexpected status body: %v", body)
	}
}

func TestDispatchReportsErrors(t *testing.T) {
	d := NewMessageDispatcher(log.NewNopLogger())
	_, err := d.Dispatch([]byte(`{"type":"NOPE"}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Expected ErrUnknownMessageType, got %v", err)
	}
	_, err = d.Dispatch([]byte(`{`))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Expected ErrInvalidMessage, got %v", err)
	}
}

type recordedPublish struct {
	topic, msgType string
	data           interface{}
}

type fakeJSONPublisher struct {
	mu        sync.Mutex
	published []recordedPublish
}

func (f *fakeJSONPublisher) PublishJSON(topic, msgType string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, recordedPublish{topic, msgType, data})
	return nil
}

func TestStatusPublisherTopics(t *testing.T) {
	fake := &fakeJSONPublisher{}
	p := NewStatusPublisher(fake, log.NewNopLogger())

	p.PublishTransition(safety.Transition{From: safety.StateNormal, To: safety.StateEmergencyStopped, Reason: safety.ReasonLinkTimeout})
	p.PublishLinkStatus(teleop.Status{Health: teleop.HealthDegraded})
	p.Report(actuator.Event{Halted: true, Reason: actuator.HaltDeadline})

	want := []struct{ topic, msgType string }{
		{TopicSafetyTransition, MsgTypeTransition},
		{TopicLinkStatus, MsgTypeLinkStatus},
		{TopicActuatorStatus, MsgTypeMotorStatus},
	}
	if len(fake.published) != len(want) {
		t.Fatalf("Expected %d publishes, got %d", len(want), len(fake.published))
	}
	for i, w := range want {
		if fake.published[i].topic != w.topic || fake.published[i].msgType != w.msgType {
			t.Errorf("Publish %d: got %s/%s, want %s/%s", i, fake.published[i].topic, fake.published[i].msgType, w.topic, w.msgType)
		}
	}
}

func TestRobotStatusRequest(t *testing.T) {
	s, err := NewZeroMQService(config.ZeroMQConfig{}, log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewZeroMQService failed: %v", err)
	}
	defer s.Stop()
	RegisterRobotStatusHandler(s, func() interface{} {
		return map[string]interface{}{"status": "halted", "left": 0}
	})

	reply, err := s.dispatcher.Dispatch([]byte(`{"type":"ROBOT_STATUS"}`))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	msg, body := decodeReply(t, reply)
	if msg.Type != MsgTypeRobot {
		t.Fatalf("Expected ROBOT_STATUS reply, got %s", msg.Type)
	}
	if body["status"] != "halted" {
		t.Errorf("Unexpected robot status body: %v", body)
	}
}

func TestServiceWithoutSockets(t *testing.T) {
	s, err := NewZeroMQService(config.ZeroMQConfig{}, log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewZeroMQService failed: %v", err)
	}
	s.Start()
	if err := s.PublishMessage("t", []byte("x")); !errors.Is(err, ErrNoPublisher) {
		t.Errorf("Expected ErrNoPublisher, got %v", err)
	}
	if s.RequestEndpoint() != "" {
		t.Errorf("Expected no request endpoint")
	}
	s.Stop()
	s.Stop()
}

func TestRequestReplyOverSocket(t *testing.T) {
	session := &fakeSession{}
	s, err := NewZeroMQService(config.ZeroMQConfig{RequestBindAddress: "tcp://127.0.0.1:*"}, log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewZeroMQService failed: %v", err)
	}
	defer s.Stop()
	RegisterControlHandlers(s, session, log.NewNopLogger())
	s.Start()

	req, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		t.Fatalf("Failed to create REQ socket: %v", err)
	}
	defer req.Close()
	if err := req.SetLinger(0); err != nil {
		t.Fatalf("SetLinger failed: %v", err)
	}
	if err := req.SetRcvtimeo(2 * time.Second); err != nil {
		t.Fatalf("SetRcvtimeo failed: %v", err)
	}
	if err := req.Connect(s.RequestEndpoint()); err != nil {
		t.Fatalf("Failed to connect to %s: %v", s.RequestEndpoint(), err)
	}

	if _, err := req.SendBytes([]byte(`{"type":"ESTOP","timestamp":1}`), 0); err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	reply, err := req.RecvBytes(0)
	if err != nil {
		t.Fatalf("Failed to receive reply: %v", err)
	}

	msg, body := decodeReply(t, reply)
	if msg.Type != MsgTypeAck || body["state"] != "EMERGENCY_STOPPED" {
		t.Errorf("Unexpected reply %s %v", msg.Type, body)
	}
	if session.Status().State != safety.StateEmergencyStopped {
		t.Errorf("Expected the session to be stopped")
	}
}

func TestStatusListenerReceivesActuatorEvents(t *testing.T) {
	s, err := NewZeroMQService(config.ZeroMQConfig{PublishBindAddress: "tcp://127.0.0.1:*"}, log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewZeroMQService failed: %v", err)
	}
	defer s.Stop()
	s.Start()

	events := make(chan actuator.Event, 16)
	listener, err := NewStatusListener(s.PublishEndpoint(), func(e actuator.Event) {
		select {
		case events <- e:
		default:
		}
	}, log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewStatusListener failed: %v", err)
	}
	defer listener.Stop()
	listener.Start()

	pub := NewStatusPublisher(s, log.NewNopLogger())
	// Ignored: wrong topic.
	pub.PublishTransition(safety.Transition{To: safety.StateEmergencyStopped})

	// PUB drops messages until the subscription propagates, so keep publishing.
	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case e := <-events:
			if !e.Halted || e.Reason != actuator.HaltDeadline {
				t.Errorf("Unexpected event %+v", e)
			}
			return
		case <-ticker.C:
			pub.Report(actuator.Event{Halted: true, Reason: actuator.HaltDeadline, Timestamp: time.Now()})
		case <-deadline:
			t.Fatalf("No actuator status received")
		}
	}
}
