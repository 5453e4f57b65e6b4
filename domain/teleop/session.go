package teleop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-teleop/rover/domain/safety"
	"github.com/open-teleop/rover/pkg/config"
	"github.com/open-teleop/rover/pkg/log"
	"github.com/open-teleop/rover/pkg/wire"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSessionStarted = errors.New("session already started")
)

// Link is the datagram transport a session drives.
type Link interface {
	Dispatcher
	Start()
	SendFinal(payload []byte, timeout time.Duration) error
	Close() error
}

// Config holds the session timing and steering settings.
type Config struct {
	TickInterval       time.Duration
	PollInterval       time.Duration
	LinkTimeout        time.Duration
	DegradedAfter      time.Duration
	FinalSendTimeout   time.Duration
	MaxMagnitude       int
	UnconditionalReset bool

	TrackingEnabled bool
	SpeedScale      float64
	MinConfidence   float64
	FrameWidth      float64
}

// ConfigFromController maps the controller bootstrap file onto a session Config.
func ConfigFromController(cfg *config.ControllerConfig) Config {
	return Config{
		TickInterval:       cfg.Control.TickInterval(),
		PollInterval:       cfg.Watchdog.PollInterval(),
		LinkTimeout:        cfg.Watchdog.LinkTimeout(),
		DegradedAfter:      cfg.Watchdog.DegradedAfter(),
		FinalSendTimeout:   cfg.Link.FinalSendTimeout(),
		MaxMagnitude:       cfg.Control.MaxMagnitude,
		UnconditionalReset: cfg.Safety.UnconditionalReset,
		TrackingEnabled:    cfg.Tracking.Enabled,
		SpeedScale:         cfg.Tracking.SpeedScale,
		MinConfidence:      cfg.Tracking.MinConfidence,
		FrameWidth:         cfg.Tracking.FrameWidth,
	}
}

// Health summarizes the session for operators.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthStopped  Health = "stopped"
)

// WheelPair is a command without its timestamp.
type WheelPair struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID       string           `json:"session_id"`
	Health          Health           `json:"health"`
	State           safety.State     `json:"state"`
	Reason          string           `json:"reason,omitempty"`
	Since           time.Time        `json:"since"`
	LinkAgeMs       int64            `json:"link_age_ms"`
	TrackingEnabled bool             `json:"tracking_enabled"`
	Manual          *MotionIntent    `json:"manual,omitempty"`
	Tracking        *MotionIntent    `json:"tracking,omitempty"`
	Active          MotionIntent     `json:"active"`
	LastCommand     WheelPair        `json:"last_command"`
	Scheduler       SchedulerMetrics `json:"scheduler"`
}

// Session owns one teleoperation link: its inputs, safety state, scheduler
// and watchdog. Close tears everything down exactly once.
type Session struct {
	id     string
	cfg    Config
	codec  wire.Codec
	link   Link
	health *LinkHealth
	logger log.Logger

	inputs    *Inputs
	arbiter   Arbiter
	safety    *safety.StateMachine
	scheduler *Scheduler
	watchdog  *Watchdog

	mu            sync.Mutex
	started       bool
	closed        bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	closeErr      error
	done          chan struct{}
	lastHealth    Health
	healthWatches []func(Status)
}

// NewSession wires a session around link. health must be the LinkHealth the
// link reports successful sends to.
func NewSession(cfg Config, codec wire.Codec, link Link, health *LinkHealth, logger log.Logger) *Session {
	id := uuid.NewString()
	logger = logger.WithField("session", id[:8])

	s := &Session{
		id:         id,
		cfg:        cfg,
		codec:      codec,
		link:       link,
		health:     health,
		logger:     logger,
		inputs:     NewInputs(cfg.TrackingEnabled),
		arbiter:    Arbiter{MaxMagnitude: cfg.MaxMagnitude},
		lastHealth: HealthHealthy,
		done:       make(chan struct{}),
	}

	s.safety = safety.NewStateMachine(logger,
		safety.WithLinkCheck(func(now time.Time) bool {
			return health.Alive(now, cfg.LinkTimeout)
		}),
		safety.WithUnconditionalReset(cfg.UnconditionalReset))
	s.scheduler = NewScheduler(cfg.TickInterval, s.inputs, s.arbiter, s.safety, codec, link, logger)
	s.safety.OnStop(func() {
		s.inputs.Clear()
		s.scheduler.Halt(time.Now())
	})
	s.safety.OnTransition(func(safety.Transition) { s.publishHealth(time.Now(), true) })

	s.watchdog = NewWatchdog(health, s.safety, cfg.LinkTimeout, cfg.PollInterval, logger)
	s.watchdog.onCheck = func(now time.Time, _ time.Duration) { s.publishHealth(now, false) }
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Safety exposes the state machine so surfaces can observe transitions.
func (s *Session) Safety() *safety.StateMachine { return s.safety }

// OnHealthChange registers fn to receive the status whenever the health
// value changes.
func (s *Session) OnHealthChange(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthWatches = append(s.healthWatches, fn)
}

// Start launches the send worker, the scheduler and the watchdog.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.started {
		return ErrSessionStarted
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.health.MarkSent(time.Now())
	s.link.Start()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.scheduler.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.watchdog.Run(runCtx)
	}()

	s.logger.Infof("Session started: tick=%v timeout=%v poll=%v", s.cfg.TickInterval, s.cfg.LinkTimeout, s.cfg.PollInterval)
	return nil
}

// Close stops the loops, sends one final stop command and closes the link.
// It never waits on the session's own goroutines, so a health watcher or
// transition listener may call it. Only the first call tears down; later
// calls return at once with the first call's error, or nil while it is
// still running. Done is closed once the loops have exited.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		err := s.closeErr
		s.mu.Unlock()
		return err
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.safety.Trigger(safety.ReasonSessionClosed)
	s.scheduler.Stop()

	var errs []error
	if payload, err := s.codec.Encode(wire.Zero(time.Now())); err != nil {
		errs = append(errs, fmt.Errorf("encode final stop: %w", err))
	} else if err := s.link.SendFinal(payload, s.cfg.FinalSendTimeout); err != nil {
		errs = append(errs, fmt.Errorf("send final stop: %w", err))
	}
	if err := s.link.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close link: %w", err))
	}
	err := errors.Join(errs...)

	s.mu.Lock()
	s.closeErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Warnf("Session closed with errors: %v", err)
	} else {
		s.logger.Infof("Session closed")
	}

	go func() {
		s.wg.Wait()
		close(s.done)
	}()
	return err
}

// Done is closed after Close once the scheduler and watchdog have exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SetManual stores a joystick position; x turns, y drives.
func (s *Session) SetManual(x, y float64) {
	s.inputs.SetManual(x, y)
}

// ReleaseManual records that the operator let go of the joystick.
func (s *Session) ReleaseManual() {
	s.inputs.ReleaseManual()
}

// UpdateDetections steers toward the primary target of frame. Frames are
// ignored while tracking is disabled.
func (s *Session) UpdateDetections(frame DetectionFrame, receivedAt time.Time) bool {
	width := frame.FrameWidth
	if width <= 0 {
		width = s.cfg.FrameWidth
	}
	detections := FilterConfidence(frame.Detections, s.cfg.MinConfidence)
	intent := ComputeIntent(detections, width, s.cfg.SpeedScale)
	return s.inputs.SetTracking(intent, receivedAt)
}

// SetTrackingEnabled turns autonomous tracking on or off.
func (s *Session) SetTrackingEnabled(enabled bool) {
	s.inputs.SetTrackingEnabled(enabled)
	s.logger.Infof("Tracking enabled: %t", enabled)
}

// EmergencyStop latches the emergency stop. It returns false if already stopped.
func (s *Session) EmergencyStop() bool {
	return s.safety.Trigger(safety.ReasonManualStop)
}

// Reset clears the emergency stop; see safety.StateMachine.Reset.
func (s *Session) Reset() error {
	return s.safety.Reset()
}

// Status returns the current session view.
func (s *Session) Status() Status {
	return s.status(time.Now())
}

func (s *Session) status(now time.Time) Status {
	snap := s.safety.Snapshot()
	age := s.health.Age(now)
	manual, tracking := s.inputs.Snapshot()
	last := s.scheduler.LastCommand()

	return Status{
		SessionID:       s.id,
		Health:          s.healthOf(snap.State, age),
		State:           snap.State,
		Reason:          snap.Reason,
		Since:           snap.Since,
		LinkAgeMs:       age.Milliseconds(),
		TrackingEnabled: s.inputs.TrackingEnabled(),
		Manual:          manual,
		Tracking:        tracking,
		Active:          s.arbiter.Select(manual, tracking, snap.State),
		LastCommand:     WheelPair{Left: last.Left, Right: last.Right},
		Scheduler:       s.scheduler.Metrics(),
	}
}

func (s *Session) healthOf(state safety.State, age time.Duration) Health {
	switch {
	case state == safety.StateEmergencyStopped:
		return HealthStopped
	case age > s.cfg.DegradedAfter:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// publishHealth notifies health watchers when the health value changed, or
// unconditionally when force is set.
func (s *Session) publishHealth(now time.Time, force bool) {
	st := s.status(now)

	s.mu.Lock()
	changed := st.Health != s.lastHealth
	s.lastHealth = st.Health
	watches := append([]func(Status){}, s.healthWatches...)
	s.mu.Unlock()

	if !changed && !force {
		return
	}
	if changed && st.Health == HealthDegraded {
		s.logger.Warnf("Link degraded: last send %dms ago", st.LinkAgeMs)
	}
	for _, fn := range watches {
		fn(st)
	}
}
