package master

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/logger"
	"github.com/arloliu/go-mbserial/transport"
)

var (
	// ErrRetriesExhausted is returned when no attempt of a transaction got a
	// valid response. The error also wraps the cause of the last attempt:
	// frame.ErrTimeout, frame.ErrMalformedFrame or frame.ErrChecksumMismatch.
	ErrRetriesExhausted = errors.New("master: retries exhausted")

	// ErrTransport wraps a failure of the port. Such failures abort the
	// transaction without retry.
	ErrTransport = errors.New("master: transport failure")

	// ErrPortNil is returned by New when no port is given.
	ErrPortNil = errors.New("master: port is nil")
)

// Master sends requests and collects responses over a single port.
// Its methods are safe for concurrent use; transactions are serialized.
type Master struct {
	cfg    *Config
	port   transport.Port
	reader *frame.Reader
	logger logger.Logger

	mu         sync.Mutex // held for a whole transaction
	timeout    time.Duration
	retryLimit int

	state   atomicTxState
	metrics Metrics
}

// New returns a Master on port. A nil cfg selects the defaults of NewConfig.
//
// The Master does not take ownership of port; the caller closes it.
func New(port transport.Port, cfg *Config) (*Master, error) {
	if port == nil {
		return nil, ErrPortNil
	}

	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	m := &Master{
		cfg:  cfg,
		port: port,
		reader: frame.NewReader(port, cfg.encoding,
			frame.WithASCIICharTimeout(cfg.asciiCharTimeout),
			frame.WithRTUCharTimeout(cfg.rtuCharTimeout),
		),
		logger:     cfg.logger.With("role", "master", "encoding", cfg.encoding.String()),
		timeout:    cfg.timeout,
		retryLimit: cfg.retryLimit,
	}

	return m, nil
}

// Send runs one transaction: it sends body with the given command code to
// addr and returns the validated response.
//
// For requests that expect no response, Send returns (nil, nil) once the
// request is written. When every attempt fails, the error wraps
// ErrRetriesExhausted and the cause of the last attempt. Port failures wrap
// ErrTransport and are returned immediately.
//
// ctx is checked before each attempt; an attempt in progress is not
// interrupted.
func (m *Master) Send(ctx context.Context, addr, code byte, body []byte) (*frame.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.state.Set(TxIdle)

	m.metrics.incTransactionCount()

	resp, err := m.transact(ctx, frame.NewFrame(addr, code, body))
	if err != nil {
		m.metrics.incFailureCount()
		m.logger.Error("transaction failed", "address", addr, "code", code, "error", err)

		return nil, err
	}
	m.metrics.incSuccessCount()

	return resp, nil
}

// SendTransaction is Send reduced to a success flag.
func (m *Master) SendTransaction(ctx context.Context, addr, code byte, body []byte) bool {
	_, err := m.Send(ctx, addr, code, body)
	return err == nil
}

func (m *Master) transact(ctx context.Context, req frame.Frame) (*frame.Frame, error) {
	m.state.Set(TxEncoding)

	wire, err := frame.Encode(m.cfg.encoding, req)
	if err != nil {
		return nil, err
	}

	expectsResponse := m.cfg.ExpectsResponse(req.Address, req.Code)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= m.retryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if attempt > 0 {
			m.metrics.incRetryCount()
			m.logger.Warn("retry request", "address", req.Address, "code", req.Code,
				"attempt", attempt+1, "last_error", lastErr)
		}

		if expectsResponse {
			if err := m.reader.Discard(); err != nil {
				return nil, fmt.Errorf("%w: discard input: %w", ErrTransport, err)
			}
		}

		if _, err := m.port.Write(wire); err != nil {
			return nil, fmt.Errorf("%w: write request: %w", ErrTransport, err)
		}
		attempts++
		m.metrics.incTransmissionCount()
		m.state.Set(TxTransmitted)

		if !expectsResponse {
			m.metrics.incNoResponseCount()
			m.logger.Debug("request sent, no response expected", "address", req.Address, "code", req.Code)

			return nil, nil
		}

		m.state.Set(TxAwaitingResponse)
		resp, err := m.awaitResponse(req)
		if err == nil {
			m.state.Set(TxValidated)
			m.onResponse(resp)

			return &resp, nil
		}
		if errors.Is(err, ErrTransport) {
			return nil, err
		}

		m.state.Set(TxTimedOut)
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

// awaitResponse reads frames until one answers req or the attempt's timeout
// elapses. A frame from another address or with another command code is a
// late reply to an earlier request and is dropped.
func (m *Master) awaitResponse(req frame.Frame) (frame.Frame, error) {
	deadline := time.Now().Add(m.timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			m.metrics.incTimeoutCount()
			return frame.Frame{}, frame.ErrTimeout
		}

		raw, err := m.reader.ReadFrame(remaining)
		if err != nil {
			if errors.Is(err, frame.ErrTimeout) {
				m.metrics.incTimeoutCount()
				return frame.Frame{}, err
			}

			return frame.Frame{}, fmt.Errorf("%w: read response: %w", ErrTransport, err)
		}

		resp, err := frame.Decode(m.cfg.encoding, raw)
		if err != nil {
			m.metrics.incInvalidResponseCount()
			m.logger.Debug("invalid response", "raw", raw, "error", err)

			return frame.Frame{}, err
		}

		if resp.Address != req.Address || resp.Code != req.Code {
			m.metrics.incUnmatchedResponseCount()
			m.logger.Warn("discard unmatched response",
				"request_address", req.Address, "request_code", req.Code,
				"response_address", resp.Address, "response_code", resp.Code)

			continue
		}

		return resp, nil
	}
}

func (m *Master) onResponse(resp frame.Frame) {
	m.logger.Debug("response received", "address", resp.Address, "code", resp.Code, "body_len", len(resp.Body))

	if m.cfg.responseHandler != nil {
		m.cfg.responseHandler(resp)
	}
}

// SetTimeout changes the response timeout of subsequent transactions.
// It waits for a transaction in flight to finish.
func (m *Master) SetTimeout(d time.Duration) error {
	if err := validateTimeout(d); err != nil {
		return err
	}

	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()

	return nil
}

// SetRetryLimit changes the retry limit of subsequent transactions.
// It waits for a transaction in flight to finish.
func (m *Master) SetRetryLimit(n int) error {
	if err := validateRetryLimit(n); err != nil {
		return err
	}

	m.mu.Lock()
	m.retryLimit = n
	m.mu.Unlock()

	return nil
}

// Timeout returns the current response timeout.
func (m *Master) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.timeout
}

// RetryLimit returns the current retry limit.
func (m *Master) RetryLimit() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.retryLimit
}

// State returns the phase of the transaction in flight, TxIdle if none.
func (m *Master) State() TxState {
	return m.state.Get()
}

// Metrics returns the master's counters.
func (m *Master) Metrics() *Metrics {
	return &m.metrics
}

// Config returns the configuration the master was created with.
func (m *Master) Config() *Config {
	return m.cfg
}
