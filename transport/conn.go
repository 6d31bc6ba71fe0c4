package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"
)

const (
	// DefaultWriteTimeout bounds each Write on a ConnPort.
	DefaultWriteTimeout = 3 * time.Second

	// drainTimeout is the silence that ends ResetInputBuffer on a stream
	// connection, which has no kernel buffer to flush.
	drainTimeout = time.Millisecond
)

// ConnPort adapts a net.Conn to the Port contract. Read timeouts are
// emulated with read deadlines and a deadline expiry is reported as (0, nil).
type ConnPort struct {
	conn         net.Conn
	readTimeout  atomic.Int64
	writeTimeout time.Duration
}

var _ Port = (*ConnPort)(nil)

// ConnOption configures a ConnPort.
type ConnOption func(*ConnPort)

// WithWriteTimeout sets the deadline applied to each Write. A non-positive
// value disables write deadlines.
func WithWriteTimeout(d time.Duration) ConnOption {
	return func(p *ConnPort) {
		p.writeTimeout = d
	}
}

// NewConnPort wraps conn. The initial read timeout is NoTimeout.
func NewConnPort(conn net.Conn, opts ...ConnOption) *ConnPort {
	p := &ConnPort{conn: conn, writeTimeout: DefaultWriteTimeout}
	p.readTimeout.Store(int64(NoTimeout))

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// DialTCP connects to addr, such as a serial-to-TCP gateway, and wraps the
// connection.
func DialTCP(addr string, timeout time.Duration, opts ...ConnOption) (*ConnPort, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	return NewConnPort(conn, opts...), nil
}

// Read reads up to len(b) bytes, waiting at most the configured read timeout.
func (p *ConnPort) Read(b []byte) (int, error) {
	var deadline time.Time
	if timeout := time.Duration(p.readTimeout.Load()); timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return 0, mapConnError(err)
	}

	n, err := p.conn.Read(b)
	if err != nil && isTimeoutError(err) {
		return n, nil
	}

	return n, mapConnError(err)
}

// Write writes all of b.
func (p *ConnPort) Write(b []byte) (int, error) {
	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return 0, mapConnError(err)
		}
	}

	written := 0
	for written < len(b) {
		n, err := p.conn.Write(b[written:])
		written += n

		if err != nil {
			return written, mapConnError(err)
		}
	}

	return written, nil
}

// SetReadTimeout sets the timeout of subsequent Read calls.
func (p *ConnPort) SetReadTimeout(t time.Duration) error {
	if t < 0 {
		t = NoTimeout
	}
	p.readTimeout.Store(int64(t))

	return nil
}

// ResetInputBuffer reads and discards bytes until the connection has been
// silent for a millisecond.
func (p *ConnPort) ResetInputBuffer() error {
	buf := make([]byte, 256)

	for {
		if err := p.conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
			return mapConnError(err)
		}

		n, err := p.conn.Read(buf)
		if err != nil {
			if isTimeoutError(err) {
				return nil
			}

			return mapConnError(err)
		}

		if n == 0 {
			return nil
		}
	}
}

// Close closes the underlying connection.
func (p *ConnPort) Close() error {
	err := p.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

// Conn returns the wrapped connection.
func (p *ConnPort) Conn() net.Conn {
	return p.conn
}

func isTimeoutError(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func mapConnError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}
