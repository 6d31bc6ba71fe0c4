package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-mbserial/internal/pool"
)

// pipeBuffer holds the bytes flowing in one direction of a Pipe.
type pipeBuffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
	notify chan struct{} // signaled on write, capacity 1
	done   chan struct{} // closed on close
}

func newPipeBuffer() *pipeBuffer {
	return &pipeBuffer{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (b *pipeBuffer) write(p []byte) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	b.data = append(b.data, p...)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}

	return len(p), nil
}

// take copies buffered bytes into p. ok is false when nothing is buffered.
func (b *pipeBuffer) take(p []byte) (n int, ok bool, closed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) > 0 {
		n = copy(p, b.data)
		b.data = b.data[n:]

		return n, true, b.closed
	}

	return 0, false, b.closed
}

func (b *pipeBuffer) reset() {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()

	select {
	case <-b.notify:
	default:
	}
}

func (b *pipeBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

// PipePort is one end of an in-memory, buffered, full-duplex byte stream.
// Unlike net.Pipe, writes never block waiting for the peer to read.
type PipePort struct {
	rx          *pipeBuffer
	tx          *pipeBuffer
	readTimeout atomic.Int64
}

var _ Port = (*PipePort)(nil)

// Pipe creates a connected pair of in-memory ports. Bytes written to one end
// are read from the other. Closing either end closes both directions.
func Pipe() (*PipePort, *PipePort) {
	ab, ba := newPipeBuffer(), newPipeBuffer()

	a := &PipePort{rx: ba, tx: ab}
	b := &PipePort{rx: ab, tx: ba}
	a.readTimeout.Store(int64(NoTimeout))
	b.readTimeout.Store(int64(NoTimeout))

	return a, b
}

// Read reads buffered bytes, waiting up to the read timeout for some to arrive.
// Bytes written before the pipe was closed can still be read.
func (p *PipePort) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	var timerC <-chan time.Time
	if timeout := time.Duration(p.readTimeout.Load()); timeout >= 0 {
		timer := pool.GetTimer(timeout)
		defer pool.PutTimer(timer)
		timerC = timer.C
	}

	for {
		n, ok, closed := p.rx.take(b)
		if ok {
			return n, nil
		}
		if closed {
			return 0, ErrClosed
		}

		select {
		case <-p.rx.notify:
		case <-p.rx.done:
		case <-timerC:
			return 0, nil
		}
	}
}

// Write appends b to the peer's receive buffer.
func (p *PipePort) Write(b []byte) (int, error) {
	return p.tx.write(b)
}

// SetReadTimeout sets the timeout of subsequent Read calls.
func (p *PipePort) SetReadTimeout(t time.Duration) error {
	if t < 0 {
		t = NoTimeout
	}
	p.readTimeout.Store(int64(t))

	return nil
}

// ResetInputBuffer drops bytes received but not yet read.
func (p *PipePort) ResetInputBuffer() error {
	p.rx.reset()

	return nil
}

// Close closes both directions of the pipe.
func (p *PipePort) Close() error {
	p.rx.close()
	p.tx.close()

	return nil
}
