package master

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/logger"
	"github.com/arloliu/go-mbserial/transport"
)

// spyPort counts the calls made on one end of a pipe.
type spyPort struct {
	*transport.PipePort

	reads    atomic.Int32
	writes   atomic.Int32
	resets   atomic.Int32
	writeErr error
}

func (p *spyPort) Read(b []byte) (int, error) {
	p.reads.Add(1)
	return p.PipePort.Read(b)
}

func (p *spyPort) Write(b []byte) (int, error) {
	p.writes.Add(1)
	if p.writeErr != nil {
		return 0, p.writeErr
	}

	return p.PipePort.Write(b)
}

func (p *spyPort) ResetInputBuffer() error {
	p.resets.Add(1)
	return p.PipePort.ResetInputBuffer()
}

// replyFunc returns the wire bytes to send back for the n-th request
// (counting from 1), or nil to stay silent.
type replyFunc func(req frame.Frame, n int) []byte

func newTestMaster(t *testing.T, opts ...Option) (*Master, *spyPort, *transport.PipePort) {
	t.Helper()

	local, remote := transport.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
	})

	spy := &spyPort{PipePort: local}

	opts = append([]Option{WithLogger(logger.NewMockLogger().AllowAll())}, opts...)
	cfg, err := NewConfig(opts...)
	require.NoError(t, err)

	m, err := New(spy, cfg)
	require.NoError(t, err)

	return m, spy, remote
}

// startResponder answers requests arriving on remote until the pipe closes.
// It returns a counter of the requests it saw.
func startResponder(t *testing.T, remote *transport.PipePort, enc frame.Encoding, reply replyFunc) *atomic.Int32 {
	t.Helper()

	var count atomic.Int32
	r := frame.NewReader(remote, enc, frame.WithRTUCharTimeout(5*time.Millisecond))

	go func() {
		for {
			raw, err := r.ReadFrame(transport.NoTimeout)
			if err != nil {
				return
			}

			req, err := frame.Decode(enc, raw)
			if err != nil {
				continue
			}

			if wire := reply(req, int(count.Add(1))); wire != nil {
				if _, err := remote.Write(wire); err != nil {
					return
				}
			}
		}
	}()

	return &count
}

func mustEncode(t *testing.T, enc frame.Encoding, f frame.Frame) []byte {
	t.Helper()

	wire, err := frame.Encode(enc, f)
	require.NoError(t, err)

	return wire
}

// encode is Encode for the responder goroutine, where require cannot be used.
func encode(enc frame.Encoding, f frame.Frame) []byte {
	wire, _ := frame.Encode(enc, f)
	return wire
}

// echoReply answers every request with body "ack:" + request body.
func echoReply(enc frame.Encoding) replyFunc {
	return func(req frame.Frame, _ int) []byte {
		body := append([]byte("ack:"), req.Body...)
		return encode(enc, frame.NewFrame(req.Address, req.Code, body))
	}
}

// corrupt flips the last content byte before the checksum.
func corrupt(wire []byte, enc frame.Encoding) []byte {
	out := append([]byte(nil), wire...)
	if enc == frame.ASCII {
		// last hex digit of the body, before the 2-digit LRC and CR LF
		i := len(out) - 5
		if out[i] == '0' {
			out[i] = '1'
		} else {
			out[i] = '0'
		}

		return out
	}

	out[len(out)-3] ^= 0xFF

	return out
}
