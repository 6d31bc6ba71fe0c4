// Package transport defines the byte-stream contract the protocol engine runs
// on and provides three implementations of it: a serial port backed by
// go.bug.st/serial, an adapter for any net.Conn (RTU or ASCII framing over
// TCP, or net.Pipe in tests), and a buffered in-memory pipe.
//
// The engine never opens or closes a physical connection on its own; opening
// a Port and closing it at shutdown is the caller's responsibility.
package transport

import (
	"errors"
	"io"
	"time"
)

// NoTimeout makes Read block until at least one byte arrives or the port is
// closed. It has the same value as go.bug.st/serial.NoTimeout.
const NoTimeout time.Duration = -1

// ErrClosed is returned (possibly wrapped) by a Port that has been closed,
// locally or by the remote end.
var ErrClosed = errors.New("transport: port closed")

// Port is an ordered, full-duplex byte stream.
//
// Read follows the serial port convention rather than the net.Conn one: when
// the read timeout set by SetReadTimeout elapses before any byte arrives,
// Read returns 0 and a nil error. A negative timeout (NoTimeout) blocks.
//
// A Port is used by a single endpoint; implementations need not support
// concurrent readers.
type Port interface {
	io.ReadWriteCloser

	// SetReadTimeout sets the timeout applied to each subsequent Read call.
	SetReadTimeout(t time.Duration) error

	// ResetInputBuffer discards any received bytes that have not been read yet.
	ResetInputBuffer() error
}

// IsClosed reports whether err indicates the port is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
