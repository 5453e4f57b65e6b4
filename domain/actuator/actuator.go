package actuator

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/open-teleop/rover/pkg/log"
	"github.com/open-teleop/rover/pkg/wire"
)

// Halt reasons.
const (
	HaltStartup  = "startup"
	HaltDeadline = "command deadline exceeded"
	HaltShutdown = "shutdown"
)

// Sink drives the physical motors.
type Sink interface {
	Apply(left, right int) error
	Halt() error
}

// Event describes an applied command or a halt.
type Event struct {
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Halted    bool      `json:"halted"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Reporter observes actuator events. Report must not block.
type Reporter interface {
	Report(e Event)
}

// Config holds the receiver-side timing.
type Config struct {
	Deadline      time.Duration
	PollInterval  time.Duration
	MaxCommandAge time.Duration
}

// Status is a point-in-time view of the actuator.
type Status struct {
	Halted     bool              `json:"halted"`
	HaltReason string            `json:"halt_reason,omitempty"`
	LastValid  time.Time         `json:"last_valid"`
	Applied    wire.MotorCommand `json:"applied"`
	Received   uint64            `json:"received"`
	Rejected   uint64            `json:"rejected"`
	SinkErrors uint64            `json:"sink_errors"`
}

// Actuator gates decoded commands through the receiver deadline. It does
// not know anything about the sender's safety state: silence alone halts.
type Actuator struct {
	cfg       Config
	codec     wire.Codec
	sink      Sink
	deadline  *Deadline
	reporters []Reporter
	logger    log.Logger

	mu            sync.Mutex
	stopped       bool
	halted        bool
	haltReason    string
	applied       wire.MotorCommand
	received      uint64
	rejected      uint64
	sinkErrors    uint64
	lastErrorTime time.Time
}

// New creates an actuator. Call Start before feeding datagrams.
func New(cfg Config, codec wire.Codec, sink Sink, logger log.Logger, reporters ...Reporter) *Actuator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Actuator{
		cfg:       cfg,
		codec:     codec,
		sink:      sink,
		deadline:  &Deadline{},
		reporters: reporters,
		logger:    logger,
	}
}

// Deadline exposes the receiver deadline.
func (a *Actuator) Deadline() *Deadline { return a.deadline }

// Start halts the motors so the robot starts stopped.
func (a *Actuator) Start() {
	a.halt(HaltStartup, time.Now())
}

// Shutdown halts the motors unconditionally. The halt is final: datagrams
// handled afterwards are dropped.
func (a *Actuator) Shutdown() {
	a.mu.Lock()
	a.stopped = true
	a.halted = false
	a.mu.Unlock()
	a.halt(HaltShutdown, time.Now())
}

// HandleDatagram decodes payload and applies it when valid. Invalid payloads
// are counted and dropped; they do not move the deadline.
func (a *Actuator) HandleDatagram(payload []byte, from *net.UDPAddr, receivedAt time.Time) {
	cmd, err := a.codec.Decode(payload)
	if err == nil {
		err = wire.CheckFresh(cmd, receivedAt, a.cfg.MaxCommandAge)
	}
	if err != nil {
		a.reject(err, from)
		return
	}

	a.deadline.Mark(receivedAt)
	a.apply(cmd, receivedAt)
}

func (a *Actuator) reject(err error, from *net.UDPAddr) {
	a.mu.Lock()
	a.rejected++
	rejected := a.rejected
	logNow := a.lastErrorTime.IsZero() || time.Since(a.lastErrorTime) > 5*time.Second
	if logNow {
		a.lastErrorTime = time.Now()
	}
	a.mu.Unlock()

	if logNow {
		kind := "invalid"
		var de *wire.DecodeError
		if errors.As(err, &de) {
			kind = de.Kind.String()
		}
		a.logger.WithField("from", from).Warnf("Discarded %s command: %v (total rejected: %d)", kind, err, rejected)
	}
}

func (a *Actuator) apply(cmd wire.MotorCommand, at time.Time) {
	a.mu.Lock()
	a.received++
	if a.stopped {
		a.mu.Unlock()
		return
	}
	resumed := a.halted
	changed := resumed || cmd.Left != a.applied.Left || cmd.Right != a.applied.Right
	err := a.sink.Apply(cmd.Left, cmd.Right)
	if err != nil {
		a.sinkErrors++
		a.mu.Unlock()
		a.logger.Errorf("Motor sink rejected %v: %v", cmd, err)
		return
	}
	a.halted = false
	a.haltReason = ""
	a.applied = cmd
	a.mu.Unlock()

	if resumed {
		a.logger.Infof("Resumed on valid command %v", cmd)
	}
	if changed {
		a.report(Event{Left: cmd.Left, Right: cmd.Right, Timestamp: at})
	}
}

// Run polls the deadline until ctx is cancelled.
func (a *Actuator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.check(now)
		}
	}
}

// check halts once when the deadline has passed. It returns true when this
// poll issued the halt.
func (a *Actuator) check(now time.Time) bool {
	if !a.deadline.Expired(now, a.cfg.Deadline) {
		return false
	}
	return a.halt(HaltDeadline, now)
}

// halt stops the motors unless already halted.
func (a *Actuator) halt(reason string, at time.Time) bool {
	a.mu.Lock()
	if a.halted {
		a.mu.Unlock()
		return false
	}
	err := a.sink.Halt()
	if err != nil {
		a.sinkErrors++
	}
	a.halted = true
	a.haltReason = reason
	a.applied = wire.Zero(at)
	a.mu.Unlock()

	if err != nil {
		a.logger.Errorf("Motor halt failed (%s): %v", reason, err)
	} else {
		a.logger.Warnf("Motors halted: %s", reason)
	}
	a.report(Event{Halted: true, Reason: reason, Timestamp: at})
	return true
}

func (a *Actuator) report(e Event) {
	for _, r := range a.reporters {
		r.Report(e)
	}
}

// Status returns the current actuator view.
func (a *Actuator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		Halted:     a.halted,
		HaltReason: a.haltReason,
		LastValid:  a.deadline.Last(),
		Applied:    a.applied,
		Received:   a.received,
		Rejected:   a.rejected,
		SinkErrors: a.sinkErrors,
	}
}
