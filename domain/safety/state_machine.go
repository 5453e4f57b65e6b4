package safety

import (
	"sync"
	"time"

	"github.com/open-teleop/rover/pkg/log"
)

// LinkCheckFunc reports whether the command link is currently live.
type LinkCheckFunc func(now time.Time) bool

// Option configures a StateMachine.
type Option func(*StateMachine)

// WithLinkCheck gates Reset on the link being live.
func WithLinkCheck(fn LinkCheckFunc) Option {
	return func(m *StateMachine) { m.linkCheck = fn }
}

// WithUnconditionalReset accepts every reset regardless of link state.
func WithUnconditionalReset(enabled bool) Option {
	return func(m *StateMachine) { m.unconditional = enabled }
}

// StateMachine is the only writer of the safety state. It starts NORMAL.
type StateMachine struct {
	mu     sync.Mutex
	state  State
	reason string
	since  time.Time

	stopHooks []func()
	listeners []func(Transition)

	linkCheck     LinkCheckFunc
	unconditional bool
	logger        log.Logger
}

// NewStateMachine creates a state machine in StateNormal.
func NewStateMachine(logger log.Logger, opts ...Option) *StateMachine {
	m := &StateMachine{
		state:  StateNormal,
		since:  time.Now(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnStop registers fn to run synchronously inside Trigger, after the state
// has become EMERGENCY_STOPPED and before Trigger returns.
func (m *StateMachine) OnStop(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopHooks = append(m.stopHooks, fn)
}

// OnTransition registers fn to be told about every state change.
func (m *StateMachine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current state with its reason and entry time.
func (m *StateMachine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Reason: m.reason, Since: m.since}
}

// Trigger enters EMERGENCY_STOPPED. It returns false, and keeps the original
// reason, when already stopped.
func (m *StateMachine) Trigger(reason string) bool {
	now := time.Now()

	m.mu.Lock()
	if m.state == StateEmergencyStopped {
		m.mu.Unlock()
		return false
	}
	m.state = StateEmergencyStopped
	m.reason = reason
	m.since = now
	hooks := append([]func(){}, m.stopHooks...)
	listeners := append([]func(Transition){}, m.listeners...)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	m.logger.Warnf("Emergency stop: %s", reason)
	notify(listeners, Transition{From: StateNormal, To: StateEmergencyStopped, Reason: reason, At: now})
	return true
}

// Reset returns to NORMAL. It fails with ErrNotStopped when not stopped and
// with a *ResetRejectedError when the link check says the link is down.
func (m *StateMachine) Reset() error {
	now := time.Now()

	m.mu.Lock()
	if m.state != StateEmergencyStopped {
		m.mu.Unlock()
		return ErrNotStopped
	}
	if !m.unconditional && m.linkCheck != nil && !m.linkCheck(now) {
		m.mu.Unlock()
		m.logger.Warnf("Reset rejected: %s", ReasonResetRejectedLinkDown)
		return &ResetRejectedError{Reason: ReasonResetRejectedLinkDown}
	}
	previous := m.reason
	m.state = StateNormal
	m.reason = ""
	m.since = now
	listeners := append([]func(Transition){}, m.listeners...)
	m.mu.Unlock()

	m.logger.Infof("Emergency stop cleared (was: %s)", previous)
	notify(listeners, Transition{From: StateEmergencyStopped, To: StateNormal, At: now})
	return nil
}

func notify(listeners []func(Transition), t Transition) {
	for _, fn := range listeners {
		fn(t)
	}
}
