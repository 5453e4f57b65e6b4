package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/open-teleop/rover/pkg/log"
)

// DefaultPollInterval matches the receiver socket timeout of the Pi receiver.
const DefaultPollInterval = 100 * time.Millisecond

// HandlerFunc receives a copy of each datagram with its arrival time.
type HandlerFunc func(payload []byte, from *net.UDPAddr, receivedAt time.Time)

// Receiver reads datagrams from a bound UDP socket.
type Receiver struct {
	conn         *net.UDPConn
	logger       log.Logger
	bufSize      int
	pollInterval time.Duration

	closeOnce sync.Once
}

// Listen binds a UDP socket on addr. Failures wrap ErrCannotOperate.
func Listen(addr string, bufSize int, logger log.Logger) (*Receiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrCannotOperate, addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrCannotOperate, addr, err)
	}
	if bufSize <= 0 {
		bufSize = 1024
	}
	return &Receiver{
		conn:         conn,
		logger:       logger.WithField("listen", conn.LocalAddr().String()),
		bufSize:      bufSize,
		pollInterval: DefaultPollInterval,
	}, nil
}

// LocalAddr returns the bound address.
func (r *Receiver) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Serve reads datagrams until ctx is cancelled or the receiver is closed,
// calling handle for each one. The read deadline is refreshed every poll so
// cancellation is noticed without a datagram arriving.
func (r *Receiver) Serve(ctx context.Context, handle HandlerFunc) error {
	buf := make([]byte, r.bufSize)
	var lastErrorTime time.Time

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.conn.SetReadDeadline(time.Now().Add(r.pollInterval)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				continue
			case errors.Is(err, net.ErrClosed):
				return nil
			}
			if lastErrorTime.IsZero() || time.Since(lastErrorTime) > errorLogInterval {
				r.logger.Warnf("Datagram read failed: %v", err)
				lastErrorTime = time.Now()
			}
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		handle(payload, from, time.Now())
	}
}

// Close releases the socket and unblocks Serve. It is idempotent.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.conn.Close()
	})
	return err
}
