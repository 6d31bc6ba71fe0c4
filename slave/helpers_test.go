package slave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/logger"
	"github.com/arloliu/go-mbserial/transport"
)

// testLine is the master's end of the pipe a test slave listens on.
type testLine struct {
	t      *testing.T
	enc    frame.Encoding
	port   *transport.PipePort
	reader *frame.Reader
}

func newTestSlave(t *testing.T, addr byte, opts ...Option) (*Slave, *testLine) {
	t.Helper()

	local, remote := transport.Pipe()

	opts = append([]Option{WithLogger(logger.NewMockLogger().AllowAll())}, opts...)
	cfg, err := NewConfig(addr, opts...)
	require.NoError(t, err)

	s, err := New(local, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})

	line := &testLine{
		t:      t,
		enc:    cfg.Encoding(),
		port:   remote,
		reader: frame.NewReader(remote, cfg.Encoding()),
	}

	return s, line
}

func startSlave(t *testing.T, s *Slave) {
	t.Helper()

	require.NoError(t, s.Start(t.Context()))
	require.Eventually(t, s.IsRunning, time.Second, time.Millisecond)
}

// send writes a request frame.
func (l *testLine) send(addr, code byte, body []byte) {
	l.t.Helper()

	wire, err := frame.Encode(l.enc, frame.NewFrame(addr, code, body))
	require.NoError(l.t, err)
	l.sendRaw(wire)
}

func (l *testLine) sendRaw(wire []byte) {
	l.t.Helper()

	_, err := l.port.Write(wire)
	require.NoError(l.t, err)

	if l.enc == frame.RTU {
		// keep consecutive RTU frames apart
		time.Sleep(3 * frame.DefaultRTUCharTimeout)
	}
}

// expectResponse reads and decodes one response.
func (l *testLine) expectResponse() frame.Frame {
	l.t.Helper()

	raw, err := l.reader.ReadFrame(time.Second)
	require.NoError(l.t, err)

	resp, err := frame.Decode(l.enc, raw)
	require.NoError(l.t, err)

	return resp
}

// expectSilence asserts that nothing is sent back for a while.
func (l *testLine) expectSilence() {
	l.t.Helper()

	raw, err := l.reader.ReadFrame(50 * time.Millisecond)
	require.ErrorIs(l.t, err, frame.ErrTimeout, "unexpected response % X", raw)
}
