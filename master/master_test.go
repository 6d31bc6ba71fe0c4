package master

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/logger"
	"github.com/arloliu/go-mbserial/transport"
)

func TestMaster_Send(t *testing.T) {
	for _, enc := range []frame.Encoding{frame.ASCII, frame.RTU} {
		t.Run(enc.String(), func(t *testing.T) {
			var handled []frame.Frame
			m, spy, remote := newTestMaster(t,
				WithEncoding(enc),
				WithTimeout(time.Second),
				WithResponseHandler(func(resp frame.Frame) { handled = append(handled, resp) }),
			)
			startResponder(t, remote, enc, echoReply(enc))

			resp, err := m.Send(context.Background(), 1, 2, []byte("hi"))
			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, byte(1), resp.Address)
			assert.Equal(t, byte(2), resp.Code)
			assert.Equal(t, []byte("ack:hi"), resp.Body)

			require.Len(t, handled, 1)
			assert.True(t, handled[0].Equal(*resp))

			assert.Equal(t, int32(1), spy.writes.Load())
			assert.Equal(t, int32(1), spy.resets.Load())
			assert.Equal(t, TxIdle, m.State())

			metrics := m.Metrics()
			assert.Equal(t, uint64(1), metrics.TransactionCount.Load())
			assert.Equal(t, uint64(1), metrics.TransmissionCount.Load())
			assert.Equal(t, uint64(1), metrics.SuccessCount.Load())
			assert.Zero(t, metrics.RetryCount.Load())
			assert.Zero(t, metrics.FailureCount.Load())
		})
	}
}

func TestMaster_SendTransaction(t *testing.T) {
	m, _, remote := newTestMaster(t, WithTimeout(time.Second))
	startResponder(t, remote, frame.ASCII, echoReply(frame.ASCII))

	assert.True(t, m.SendTransaction(context.Background(), 3, 2, nil))
}

func TestMaster_BroadcastDoesNotRead(t *testing.T) {
	for _, enc := range []frame.Encoding{frame.ASCII, frame.RTU} {
		m, spy, remote := newTestMaster(t, WithEncoding(enc))

		resp, err := m.Send(context.Background(), frame.BroadcastAddress, 1, []byte("all"))
		require.NoError(t, err)
		assert.Nil(t, resp)

		assert.Equal(t, int32(1), spy.writes.Load())
		assert.Zero(t, spy.reads.Load(), "broadcast must not read")
		assert.Zero(t, spy.resets.Load())
		assert.Equal(t, uint64(1), m.Metrics().NoResponseCount.Load())
		assert.Equal(t, uint64(1), m.Metrics().SuccessCount.Load())

		raw, err := frame.NewReader(remote, enc).ReadFrame(time.Second)
		require.NoError(t, err)
		req, err := frame.Decode(enc, raw)
		require.NoError(t, err)
		assert.True(t, req.Equal(frame.NewFrame(0, 1, []byte("all"))))
	}
}

func TestMaster_NoResponseRule(t *testing.T) {
	writeNoReply := func(_, code byte) bool { return code == 1 }
	m, spy, remote := newTestMaster(t, WithNoResponse(writeNoReply), WithTimeout(time.Second))
	startResponder(t, remote, frame.ASCII, echoReply(frame.ASCII))

	resp, err := m.Send(context.Background(), 5, 1, []byte("text"))
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Zero(t, spy.reads.Load())

	// the responder echoes the write-text request too; that reply must be
	// dropped rather than taken as the read's response
	resp, err = m.Send(context.Background(), 5, 2, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, byte(2), resp.Code)
	assert.Equal(t, []byte("ack:"), resp.Body)
}

func TestMaster_RetriesExhausted(t *testing.T) {
	m, spy, remote := newTestMaster(t, WithRetryLimit(2), WithTimeout(20*time.Millisecond))
	requests := startResponder(t, remote, frame.ASCII, func(frame.Frame, int) []byte { return nil })

	resp, err := m.Send(context.Background(), 1, 2, nil)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, frame.ErrTimeout)
	assert.Contains(t, err.Error(), "after 3 attempts")

	assert.Equal(t, int32(3), spy.writes.Load(), "retry limit 2 means exactly 3 transmissions")
	assert.Eventually(t, func() bool { return requests.Load() == 3 }, time.Second, 5*time.Millisecond)

	metrics := m.Metrics()
	assert.Equal(t, uint64(3), metrics.TransmissionCount.Load())
	assert.Equal(t, uint64(2), metrics.RetryCount.Load())
	assert.Equal(t, uint64(3), metrics.TimeoutCount.Load())
	assert.Equal(t, uint64(1), metrics.FailureCount.Load())
	assert.Zero(t, metrics.SuccessCount.Load())
}

func TestMaster_ZeroRetries(t *testing.T) {
	m, spy, _ := newTestMaster(t, WithRetryLimit(0), WithTimeout(10*time.Millisecond))

	assert.False(t, m.SendTransaction(context.Background(), 1, 2, nil))
	assert.Equal(t, int32(1), spy.writes.Load())
}

func TestMaster_RetryAfterChecksumMismatch(t *testing.T) {
	for _, enc := range []frame.Encoding{frame.ASCII, frame.RTU} {
		t.Run(enc.String(), func(t *testing.T) {
			m, spy, remote := newTestMaster(t, WithEncoding(enc), WithTimeout(time.Second))
			echo := echoReply(enc)
			startResponder(t, remote, enc, func(req frame.Frame, n int) []byte {
				if n == 1 {
					return corrupt(echo(req, n), enc)
				}

				return echo(req, n)
			})

			resp, err := m.Send(context.Background(), 1, 2, []byte{0x42})
			require.NoError(t, err)
			assert.Equal(t, []byte{'a', 'c', 'k', ':', 0x42}, resp.Body)
			assert.Equal(t, int32(2), spy.writes.Load())
			assert.Equal(t, uint64(1), m.Metrics().InvalidResponseCount.Load())
			assert.Equal(t, uint64(1), m.Metrics().RetryCount.Load())
		})
	}
}

func TestMaster_AllResponsesCorrupted(t *testing.T) {
	m, _, remote := newTestMaster(t, WithEncoding(frame.RTU), WithRetryLimit(1), WithTimeout(time.Second))
	echo := echoReply(frame.RTU)
	startResponder(t, remote, frame.RTU, func(req frame.Frame, n int) []byte {
		return corrupt(echo(req, n), frame.RTU)
	})

	_, err := m.Send(context.Background(), 1, 2, nil)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, frame.ErrChecksumMismatch)

	var csErr *frame.ChecksumError
	assert.ErrorAs(t, err, &csErr)
}

func TestMaster_MalformedResponse(t *testing.T) {
	m, _, remote := newTestMaster(t, WithRetryLimit(0), WithTimeout(time.Second),
		WithASCIICharTimeout(20*time.Millisecond))
	startResponder(t, remote, frame.ASCII, func(frame.Frame, int) []byte {
		return []byte(":01")
	})

	_, err := m.Send(context.Background(), 1, 2, nil)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, frame.ErrMalformedFrame)
}

func TestMaster_StaleInputDiscarded(t *testing.T) {
	m, _, remote := newTestMaster(t, WithTimeout(time.Second))

	// a late response to some earlier request is already waiting
	_, err := remote.Write(mustEncode(t, frame.ASCII, frame.NewFrame(1, 2, []byte("stale"))))
	require.NoError(t, err)

	startResponder(t, remote, frame.ASCII, echoReply(frame.ASCII))

	resp, err := m.Send(context.Background(), 1, 2, []byte("fresh"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ack:fresh"), resp.Body)
}

func TestMaster_WriteErrorAborts(t *testing.T) {
	m, spy, _ := newTestMaster(t, WithRetryLimit(3))
	spy.writeErr = errors.New("line down")

	_, err := m.Send(context.Background(), 1, 2, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "line down")
	assert.Equal(t, int32(1), spy.writes.Load(), "transport failures are not retried")
	assert.Equal(t, uint64(1), m.Metrics().FailureCount.Load())
}

func TestMaster_ClosedPort(t *testing.T) {
	m, spy, remote := newTestMaster(t)
	require.NoError(t, remote.Close())

	_, err := m.Send(context.Background(), 1, 2, nil)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, transport.IsClosed(err))
	assert.Equal(t, int32(1), spy.writes.Load())
}

func TestMaster_ContextCanceled(t *testing.T) {
	m, spy, _ := newTestMaster(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Send(ctx, 1, 2, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, spy.writes.Load())
}

func TestMaster_ContextCanceledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, spy, remote := newTestMaster(t, WithRetryLimit(5), WithTimeout(20*time.Millisecond))
	startResponder(t, remote, frame.ASCII, func(_ frame.Frame, n int) []byte {
		if n == 2 {
			cancel()
		}

		return nil
	})

	_, err := m.Send(ctx, 1, 2, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), spy.writes.Load())
}

func TestMaster_StateDuringHandler(t *testing.T) {
	var m *Master
	var observed TxState
	m, _, remote := newTestMaster(t, WithTimeout(time.Second), WithResponseHandler(func(frame.Frame) {
		observed = m.State()
	}))
	startResponder(t, remote, frame.ASCII, echoReply(frame.ASCII))

	require.True(t, m.SendTransaction(context.Background(), 1, 2, nil))
	assert.Equal(t, TxValidated, observed)
	assert.Equal(t, TxIdle, m.State())
}

func TestMaster_ResponseFromOtherAddress(t *testing.T) {
	l := logger.NewMockLogger()
	l.On("Warn", "discard unmatched response", mock.Anything).Once()
	l.AllowAll()

	m, spy, remote := newTestMaster(t, WithTimeout(50*time.Millisecond), WithRetryLimit(0), WithLogger(l))
	startResponder(t, remote, frame.ASCII, func(req frame.Frame, _ int) []byte {
		return encode(frame.ASCII, frame.NewFrame(9, req.Code, []byte("x")))
	})

	resp, err := m.Send(context.Background(), 1, 2, nil)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, frame.ErrTimeout)
	assert.Equal(t, int32(1), spy.writes.Load())
	assert.Equal(t, uint64(1), m.Metrics().UnmatchedResponseCount.Load())
	l.AssertExpectations(t)
}

func TestMaster_ResponseWithOtherCode(t *testing.T) {
	m, spy, remote := newTestMaster(t, WithTimeout(50*time.Millisecond), WithRetryLimit(1))
	startResponder(t, remote, frame.ASCII, func(req frame.Frame, n int) []byte {
		if n == 1 {
			return encode(frame.ASCII, frame.NewFrame(req.Address, req.Code+1, []byte("wrong")))
		}

		return encode(frame.ASCII, frame.NewFrame(req.Address, req.Code, []byte("right")))
	})

	resp, err := m.Send(context.Background(), 4, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("right"), resp.Body)
	assert.Equal(t, int32(2), spy.writes.Load())
	assert.Equal(t, uint64(1), m.Metrics().RetryCount.Load())
	assert.Equal(t, uint64(1), m.Metrics().UnmatchedResponseCount.Load())
}

func TestMaster_LateResponseNotAttributed(t *testing.T) {
	m, _, remote := newTestMaster(t, WithTimeout(30*time.Millisecond), WithRetryLimit(0))
	startResponder(t, remote, frame.ASCII, func(req frame.Frame, _ int) []byte {
		if req.Code == 7 {
			time.Sleep(50 * time.Millisecond)
			return encode(frame.ASCII, frame.NewFrame(req.Address, 7, []byte("late reply to code 7")))
		}

		return encode(frame.ASCII, frame.NewFrame(req.Address, req.Code, []byte("reply to code 9")))
	})

	_, err := m.Send(context.Background(), 5, 7, nil)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	require.NoError(t, m.SetTimeout(time.Second))
	resp, err := m.Send(context.Background(), 5, 9, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, byte(9), resp.Code)
	assert.Equal(t, []byte("reply to code 9"), resp.Body)
}

func TestMaster_Setters(t *testing.T) {
	m, spy, _ := newTestMaster(t)

	assert.Equal(t, DefaultTimeout, m.Timeout())
	assert.Equal(t, DefaultRetryLimit, m.RetryLimit())

	require.NoError(t, m.SetTimeout(10*time.Millisecond))
	require.NoError(t, m.SetRetryLimit(1))
	assert.Equal(t, 10*time.Millisecond, m.Timeout())
	assert.Equal(t, 1, m.RetryLimit())

	assert.ErrorIs(t, m.SetTimeout(0), ErrInvalidConfig)
	assert.ErrorIs(t, m.SetRetryLimit(-1), ErrInvalidConfig)
	assert.Equal(t, 1, m.RetryLimit())

	assert.False(t, m.SendTransaction(context.Background(), 1, 2, nil))
	assert.Equal(t, int32(2), spy.writes.Load())

	// the config itself is untouched
	assert.Equal(t, DefaultTimeout, m.Config().Timeout())
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrPortNil)

	local, _ := transport.Pipe()
	m, err := New(local, nil)
	require.NoError(t, err)
	assert.Equal(t, frame.ASCII, m.Config().Encoding())
}
