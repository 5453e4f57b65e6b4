package teleop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-teleop/rover/domain/safety"
	"github.com/open-teleop/rover/pkg/log"
	"github.com/open-teleop/rover/pkg/wire"
)

// Dispatcher accepts encoded commands without blocking the caller.
type Dispatcher interface {
	Dispatch(payload []byte) error
}

// StateReader exposes the current safety state.
type StateReader interface {
	State() safety.State
}

// SchedulerMetrics reports scheduler counters.
type SchedulerMetrics struct {
	Ticks          uint64 `json:"ticks"`
	EncodeErrors   uint64 `json:"encode_errors"`
	DispatchErrors uint64 `json:"dispatch_errors"`
}

// Scheduler emits one motor command per tick whether or not the inputs
// changed. Ticks come from a time.Ticker so a slow tick does not shift the
// following ones.
type Scheduler struct {
	interval   time.Duration
	inputs     *Inputs
	arbiter    Arbiter
	state      StateReader
	codec      wire.Codec
	dispatcher Dispatcher
	logger     log.Logger

	// dispatchMu orders ticks against Halt and Stop.
	dispatchMu sync.Mutex
	stopped    bool

	mu            sync.Mutex
	lastCommand   wire.MotorCommand
	lastErrorTime time.Time

	ticks          atomic.Uint64
	encodeErrors   atomic.Uint64
	dispatchErrors atomic.Uint64
}

// NewScheduler creates a scheduler. It does nothing until Run is called.
func NewScheduler(interval time.Duration, inputs *Inputs, arbiter Arbiter, state StateReader,
	codec wire.Codec, dispatcher Dispatcher, logger log.Logger) *Scheduler {
	return &Scheduler{
		interval:   interval,
		inputs:     inputs,
		arbiter:    arbiter,
		state:      state,
		codec:      codec,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// tick resolves, encodes and dispatches one command.
func (s *Scheduler) tick(now time.Time) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	if s.stopped {
		return
	}
	s.ticks.Add(1)

	manual, tracking := s.inputs.Snapshot()
	cmd := s.arbiter.Resolve(manual, tracking, s.state.State())
	cmd.IssuedAt = now
	s.send(cmd)
}

// Halt dispatches a zero command at once, displacing any command still
// queued on the link. A tick in progress finishes first; ticks after Halt
// read the state the caller has already changed.
func (s *Scheduler) Halt(now time.Time) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	if s.stopped {
		return
	}
	s.send(wire.Zero(now))
}

// Stop ends dispatching. Once it returns no tick or Halt reaches the
// dispatcher.
func (s *Scheduler) Stop() {
	s.dispatchMu.Lock()
	s.stopped = true
	s.dispatchMu.Unlock()
}

// send records and dispatches cmd. Caller holds dispatchMu.
func (s *Scheduler) send(cmd wire.MotorCommand) {
	s.mu.Lock()
	s.lastCommand = cmd
	s.mu.Unlock()

	payload, err := s.codec.Encode(cmd)
	if err != nil {
		s.encodeErrors.Add(1)
		s.logError("encode", err)
		return
	}
	if err := s.dispatcher.Dispatch(payload); err != nil {
		s.dispatchErrors.Add(1)
		s.logError("dispatch", err)
	}
}

// logError logs at most once per 5 seconds.
func (s *Scheduler) logError(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErrorTime.IsZero() || time.Since(s.lastErrorTime) > 5*time.Second {
		s.logger.Warnf("Scheduler %s error: %v (ticks: %d)", op, err, s.ticks.Load())
		s.lastErrorTime = time.Now()
	}
}

// LastCommand returns the command produced by the most recent tick.
func (s *Scheduler) LastCommand() wire.MotorCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommand
}

// Metrics returns a snapshot of the scheduler counters.
func (s *Scheduler) Metrics() SchedulerMetrics {
	return SchedulerMetrics{
		Ticks:          s.ticks.Load(),
		EncodeErrors:   s.encodeErrors.Load(),
		DispatchErrors: s.dispatchErrors.Load(),
	}
}
