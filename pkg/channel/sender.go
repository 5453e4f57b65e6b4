package channel

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-teleop/rover/pkg/log"
)

// SenderMetrics reports datagram send counters.
type SenderMetrics struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithOnSent registers a callback invoked with the completion time of every
// successful write.
func WithOnSent(fn func(time.Time)) SenderOption {
	return func(s *Sender) { s.onSent = fn }
}

// WithWriteTimeout bounds each background write. Zero means no deadline.
func WithWriteTimeout(d time.Duration) SenderOption {
	return func(s *Sender) { s.writeTimeout = d }
}

// Sender writes payloads to a single UDP peer. Dispatch never blocks: the
// payload is placed in a one-slot mailbox, replacing any payload the send
// worker has not picked up yet, and the worker performs the socket write.
type Sender struct {
	conn         *net.UDPConn
	logger       log.Logger
	onSent       func(time.Time)
	writeTimeout time.Duration

	mailbox chan []byte
	stop    chan struct{}
	done    chan struct{}

	writeMu       sync.Mutex
	lastErrorTime time.Time

	lifeMu   sync.Mutex
	started  bool
	halted   bool
	haltOnce sync.Once

	final     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewSender resolves addr and opens a connected UDP socket to it.
// Failures wrap ErrCannotOperate.
func NewSender(addr string, logger log.Logger, opts ...SenderOption) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrCannotOperate, addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrCannotOperate, addr, err)
	}

	s := &Sender{
		conn:    conn,
		logger:  logger.WithField("peer", udpAddr.String()),
		mailbox: make(chan []byte, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the send worker. Calling it more than once, or after
// SendFinal or Close, is a no-op.
func (s *Sender) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.started || s.halted {
		return
	}
	s.started = true
	go s.run()
}

func (s *Sender) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case payload := <-s.mailbox:
			_ = s.write(payload, s.writeTimeout)
		}
	}
}

// Dispatch queues payload for the send worker and returns immediately.
// It fails with ErrClosed once SendFinal or Close has been called.
func (s *Sender) Dispatch(payload []byte) error {
	if s.final.Load() {
		return ErrClosed
	}
	select {
	case s.mailbox <- payload:
		return nil
	default:
	}

	// Latest wins: displace whatever is still pending.
	select {
	case <-s.mailbox:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.mailbox <- payload:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// SendFinal stops the send worker, discards any payload still queued and
// writes payload synchronously, bounded by timeout. Nothing dispatched
// earlier can reach the wire after it. It is used for the final stop
// command on teardown and may be repeated until Close.
func (s *Sender) SendFinal(payload []byte, timeout time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.haltWorker()
	return s.write(payload, timeout)
}

// haltWorker stops the send worker, waits for an in-flight write and
// empties the mailbox. Concurrent callers wait for the first to finish.
func (s *Sender) haltWorker() {
	s.haltOnce.Do(func() {
		s.final.Store(true)

		s.lifeMu.Lock()
		s.halted = true
		started := s.started
		s.lifeMu.Unlock()

		close(s.stop)
		if started {
			<-s.done
		}
		select {
		case <-s.mailbox:
			s.dropped.Add(1)
		default:
		}
	})
}

func (s *Sender) write(payload []byte, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return s.fail(err)
	}
	if _, err := s.conn.Write(payload); err != nil {
		return s.fail(err)
	}

	s.sent.Add(1)
	if s.onSent != nil {
		s.onSent(time.Now())
	}
	return nil
}

// fail counts a write error and logs it at most once per errorLogInterval.
// Caller holds writeMu.
func (s *Sender) fail(err error) error {
	n := s.failed.Add(1)
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	if s.lastErrorTime.IsZero() || time.Since(s.lastErrorTime) > errorLogInterval {
		s.logger.Warnf("Datagram send failed: %v (total failures: %d)", err, n)
		s.lastErrorTime = time.Now()
	}
	return fmt.Errorf("send datagram: %w", err)
}

// Metrics returns a snapshot of the send counters.
func (s *Sender) Metrics() SenderMetrics {
	return SenderMetrics{
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
}

// LocalAddr returns the local socket address.
func (s *Sender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close stops the send worker and releases the socket. It is idempotent.
func (s *Sender) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.haltWorker()
		err = s.conn.Close()
	})
	return err
}
