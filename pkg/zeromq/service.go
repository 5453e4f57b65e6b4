package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/rover/pkg/config"
	"github.com/open-teleop/rover/pkg/log"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrNoPublisher        = errors.New("zeromq publish socket not configured")
)

// Message types
const (
	MsgTypeEstop    = "ESTOP"
	MsgTypeReset    = "RESET"
	MsgTypeTracking = "TRACKING"
	MsgTypeStatus   = "STATUS"
	MsgTypeRobot    = "ROBOT_STATUS"
	MsgTypeAck      = "ACK"
	MsgTypeError    = "ERROR"
)

const (
	pollTimeout   = 100 * time.Millisecond
	socketTimeout = 1 * time.Second
)

// ZeroMQMessage represents a generic message structure for ZeroMQ communication
type ZeroMQMessage struct {
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse represents an error response message
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// MessageHandler defines the interface for handlers that process specific message types
type MessageHandler interface {
	HandleMessage(msg ZeroMQMessage) (interface{}, string, error)
}

// HandlerFunc is a function type that implements MessageHandler. It returns
// the reply data and reply type.
type HandlerFunc func(msg ZeroMQMessage) (interface{}, string, error)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(msg ZeroMQMessage) (interface{}, string, error) {
	return f(msg)
}

// CodedError carries the code reported in an ERROR reply.
type CodedError struct {
	Code int
	Err  error
}

func (e *CodedError) Error() string { return e.Err.Error() }
func (e *CodedError) Unwrap() error { return e.Err }

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// encodeReply builds a JSON envelope of the given type.
func encodeReply(msgType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s reply: %w", msgType, err)
	}
	return json.Marshal(ZeroMQMessage{Type: msgType, Timestamp: now(), Data: raw})
}

func errorReply(err error) []byte {
	code := 500
	var coded *CodedError
	switch {
	case errors.As(err, &coded):
		code = coded.Code
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrUnknownMessageType):
		code = 400
	}
	data, _ := encodeReply(MsgTypeError, ErrorResponse{Message: err.Error(), Code: code})
	return data
}

// MessageDispatcher routes messages to the appropriate handlers
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   log.Logger
	mu       sync.RWMutex
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(logger log.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

// RegisterHandler adds a handler for a specific message type
func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// Dispatch decodes a request and returns the encoded reply. Failures are
// returned as ERROR replies; the error is reported alongside for logging.
func (d *MessageDispatcher) Dispatch(data []byte) ([]byte, error) {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		return errorReply(err), err
	}

	d.mu.RLock()
	handler, exists := d.handlers[msg.Type]
	d.mu.RUnlock()
	if !exists {
		err := fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
		return errorReply(err), err
	}

	result, replyType, err := handler.HandleMessage(msg)
	if err != nil {
		return errorReply(err), err
	}
	reply, err := encodeReply(replyType, result)
	if err != nil {
		return errorReply(err), err
	}
	return reply, nil
}

// MessageReceiver serves requests on a REP socket
type MessageReceiver struct {
	socket     *zmq4.Socket
	dispatcher *MessageDispatcher
	poller     *zmq4.Poller
	logger     log.Logger
	running    atomic.Bool
	wg         sync.WaitGroup
}

func newMessageReceiver(ctx *zmq4.Context, address string, dispatcher *MessageDispatcher, logger log.Logger) (*MessageReceiver, error) {
	socket, err := ctx.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetSndtimeo(socketTimeout); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("MessageReceiver initialized on %s", address)
	return &MessageReceiver{
		socket:     socket,
		dispatcher: dispatcher,
		poller:     poller,
		logger:     logger,
	}, nil
}

// Start begins the message receiving loop
func (r *MessageReceiver) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(1)
	go r.loop()
}

func (r *MessageReceiver) loop() {
	defer r.wg.Done()

	for r.running.Load() {
		sockets, err := r.poller.Poll(pollTimeout)
		if err != nil {
			if r.running.Load() {
				r.logger.Warnf("Error polling socket: %v", err)
			}
			continue
		}
		if len(sockets) == 0 {
			continue
		}

		msg, err := r.socket.RecvBytes(0)
		if err != nil {
			if r.running.Load() {
				r.logger.Warnf("Error receiving message: %v", err)
			}
			continue
		}

		reply, err := r.dispatcher.Dispatch(msg)
		if err != nil {
			r.logger.Warnf("Request failed: %v", err)
		}
		if _, err := r.socket.SendBytes(reply, 0); err != nil {
			r.logger.Errorf("Error sending reply: %v", err)
		}
	}
}

// Endpoint returns the bound address, resolving wildcard ports.
func (r *MessageReceiver) Endpoint() string {
	ep, err := r.socket.GetLastEndpoint()
	if err != nil {
		return ""
	}
	return ep
}

// Close stops the loop and closes the socket from the owning side.
func (r *MessageReceiver) Close() {
	r.running.Store(false)
	r.wg.Wait()
	r.socket.Close()
}

// MessageSender publishes on a PUB socket
type MessageSender struct {
	socket *zmq4.Socket
	logger log.Logger
	closed bool
	mu     sync.Mutex
}

func newMessageSender(ctx *zmq4.Context, address string, logger log.Logger) (*MessageSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("MessageSender initialized on %s", address)
	return &MessageSender{socket: socket, logger: logger}, nil
}

// PublishMessage sends a message with the given topic
func (s *MessageSender) PublishMessage(topic string, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}
	if _, err := s.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := s.socket.SendBytes(message, zmq4.DONTWAIT); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close cleans up resources
func (s *MessageSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.socket.Close()
}

// ZeroMQService owns the optional operator REP socket and status PUB socket.
type ZeroMQService struct {
	ctx        *zmq4.Context
	receiver   *MessageReceiver
	sender     *MessageSender
	dispatcher *MessageDispatcher
	logger     log.Logger
	running    atomic.Bool
	stopOnce   sync.Once
}

// NewZeroMQService creates the sockets named in cfg. Empty addresses leave
// the corresponding socket out.
func NewZeroMQService(cfg config.ZeroMQConfig, logger log.Logger) (*ZeroMQService, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	s := &ZeroMQService{
		ctx:        ctx,
		dispatcher: NewMessageDispatcher(logger),
		logger:     logger,
	}

	if cfg.RequestBindAddress != "" {
		s.receiver, err = newMessageReceiver(ctx, cfg.RequestBindAddress, s.dispatcher, logger)
		if err != nil {
			ctx.Term()
			return nil, err
		}
	}
	if cfg.PublishBindAddress != "" {
		s.sender, err = newMessageSender(ctx, cfg.PublishBindAddress, logger)
		if err != nil {
			if s.receiver != nil {
				s.receiver.Close()
			}
			ctx.Term()
			return nil, err
		}
	}
	return s, nil
}

// RegisterHandler adds a handler for a specific message type
func (s *ZeroMQService) RegisterHandler(messageType string, handler MessageHandler) {
	s.dispatcher.RegisterHandler(messageType, handler)
}

// RegisterHandlerFunc adds a handler function for a specific message type
func (s *ZeroMQService) RegisterHandlerFunc(messageType string, handler func(ZeroMQMessage) (interface{}, string, error)) {
	s.dispatcher.RegisterHandler(messageType, HandlerFunc(handler))
}

// RequestEndpoint returns the bound REP endpoint, or "" when disabled.
func (s *ZeroMQService) RequestEndpoint() string {
	if s.receiver == nil {
		return ""
	}
	return s.receiver.Endpoint()
}

// PublishEndpoint returns the bound PUB endpoint, or "" when disabled.
func (s *ZeroMQService) PublishEndpoint() string {
	if s.sender == nil {
		return ""
	}
	ep, err := s.sender.socket.GetLastEndpoint()
	if err != nil {
		return ""
	}
	return ep
}

// Start begins serving requests
func (s *ZeroMQService) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	if s.receiver != nil {
		s.receiver.Start()
	}
	s.logger.Infof("ZeroMQ service started")
}

// Stop closes both sockets and terminates the context. It is idempotent.
func (s *ZeroMQService) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		if s.receiver != nil {
			s.receiver.Close()
		}
		if s.sender != nil {
			s.sender.Close()
		}
		s.ctx.Term()
		s.logger.Infof("ZeroMQ service stopped")
	})
}

// PublishMessage sends a message with the given topic
func (s *ZeroMQService) PublishMessage(topic string, message []byte) error {
	if s.sender == nil {
		return ErrNoPublisher
	}
	return s.sender.PublishMessage(topic, message)
}

// PublishJSON publishes data in a typed envelope on topic.
func (s *ZeroMQService) PublishJSON(topic string, messageType string, data interface{}) error {
	msg, err := encodeReply(messageType, data)
	if err != nil {
		return err
	}
	return s.PublishMessage(topic, msg)
}
