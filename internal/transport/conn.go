package transport

import (
	"errors"

	"tempo/internal/protocol"
)

// ErrClosed is returned by Send and Receive after Close.
var ErrClosed = errors.New("transport closed")

// Conn is one end of a bidirectional envelope channel. Send may be called
// from multiple goroutines; Receive must be called from a single reader.
type Conn interface {
	Send(env protocol.Envelope) error
	Receive() (protocol.Envelope, error)
	Close() error
}
