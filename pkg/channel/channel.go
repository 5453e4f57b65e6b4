// Package channel carries encoded motor commands over UDP. Delivery is
// fire-and-forget: no acknowledgement, no retransmission, no ordering.
package channel

import (
	"errors"
	"time"
)

var (
	// ErrCannotOperate means the socket could not be created. Callers treat it
	// as fatal, unlike transient send failures.
	ErrCannotOperate = errors.New("datagram channel cannot operate")
	ErrClosed        = errors.New("datagram channel closed")
)

// errorLogInterval limits repeated transport error logs.
const errorLogInterval = 5 * time.Second
