package teleop

import (
	"context"
	"time"

	"github.com/open-teleop/rover/domain/safety"
	"github.com/open-teleop/rover/pkg/log"
)

// StopTrigger forces an emergency stop.
type StopTrigger interface {
	StateReader
	Trigger(reason string) bool
}

// Watchdog trips the emergency stop when no command has left the socket for
// longer than the link timeout. It runs on its own ticker and reads only
// LinkHealth, so a stalled scheduler or send worker cannot hold it back.
type Watchdog struct {
	health  *LinkHealth
	safety  StopTrigger
	timeout time.Duration
	poll    time.Duration
	logger  log.Logger

	// onCheck, when set, observes every poll.
	onCheck func(now time.Time, age time.Duration)
}

// NewWatchdog creates a sender watchdog.
func NewWatchdog(health *LinkHealth, sm StopTrigger, timeout, poll time.Duration, logger log.Logger) *Watchdog {
	return &Watchdog{
		health:  health,
		safety:  sm,
		timeout: timeout,
		poll:    poll,
		logger:  logger,
	}
}

// Run polls until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.check(now)
		}
	}
}

// check returns true when this poll triggered the emergency stop.
func (w *Watchdog) check(now time.Time) bool {
	age := w.health.Age(now)
	if w.onCheck != nil {
		w.onCheck(now, age)
	}
	if age <= w.timeout || w.safety.State() != safety.StateNormal {
		return false
	}
	if w.safety.Trigger(safety.ReasonLinkTimeout) {
		w.logger.WithField("age", age.Round(time.Millisecond)).Warnf("No command dispatched within %v", w.timeout)
		return true
	}
	return false
}
