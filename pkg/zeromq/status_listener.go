package zeromq

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/rover/domain/actuator"
	"github.com/open-teleop/rover/pkg/log"
)

// StatusListener subscribes to an actuator's status PUB socket.
type StatusListener struct {
	ctx     *zmq4.Context
	socket  *zmq4.Socket
	poller  *zmq4.Poller
	handle  func(actuator.Event)
	logger  log.Logger
	running atomic.Bool
	wg      sync.WaitGroup
	once    sync.Once
}

// NewStatusListener connects to address and subscribes to actuator status.
func NewStatusListener(address string, handle func(actuator.Event), logger log.Logger) (*StatusListener, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}
	socket, err := ctx.NewSocket(zmq4.SUB)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	fail := func(err error) (*StatusListener, error) {
		socket.Close()
		ctx.Term()
		return nil, err
	}
	if err := socket.SetLinger(0); err != nil {
		return fail(fmt.Errorf("failed to set linger option: %w", err))
	}
	if err := socket.SetSubscribe(TopicActuatorStatus); err != nil {
		return fail(fmt.Errorf("failed to subscribe: %w", err))
	}
	if err := socket.Connect(address); err != nil {
		return fail(fmt.Errorf("failed to connect to %s: %w", address, err))
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("Status listener connected to %s", address)
	return &StatusListener{ctx: ctx, socket: socket, poller: poller, handle: handle, logger: logger}, nil
}

// Start begins receiving status messages
func (l *StatusListener) Start() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	l.wg.Add(1)
	go l.receiveLoop()
}

func (l *StatusListener) receiveLoop() {
	defer l.wg.Done()

	for l.running.Load() {
		sockets, err := l.poller.Poll(pollTimeout)
		if err != nil || len(sockets) == 0 {
			continue
		}

		parts, err := l.socket.RecvMessageBytes(0)
		if err != nil {
			l.logger.Debugf("Error receiving status: %v", err)
			continue
		}
		if len(parts) != 2 {
			l.logger.Debugf("Ignoring status message with %d parts", len(parts))
			continue
		}

		var msg ZeroMQMessage
		if err := json.Unmarshal(parts[1], &msg); err != nil {
			l.logger.Debugf("Ignoring malformed status: %v", err)
			continue
		}
		var e actuator.Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			l.logger.Debugf("Ignoring malformed status data: %v", err)
			continue
		}
		l.handle(e)
	}
}

// Stop ends the loop and releases the socket. It is idempotent.
func (l *StatusListener) Stop() {
	l.once.Do(func() {
		l.running.Store(false)
		l.wg.Wait()
		l.socket.Close()
		l.ctx.Term()
	})
}
