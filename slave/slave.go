package slave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/internal/pool"
	"github.com/arloliu/go-mbserial/internal/task"
	"github.com/arloliu/go-mbserial/logger"
	"github.com/arloliu/go-mbserial/transport"
)

const closeCheckInterval = 5 * time.Millisecond

var (
	// ErrUnknownCommand is returned by ProcessFrame when no handler is
	// registered for the command code.
	ErrUnknownCommand = errors.New("slave: unknown command")

	// ErrAddressMismatch is returned by ProcessFrame for a frame addressed
	// to another slave.
	ErrAddressMismatch = errors.New("slave: address mismatch")

	// ErrHandlerPanic is returned by ProcessFrame when the handler panicked.
	ErrHandlerPanic = errors.New("slave: handler panic")

	// ErrTransport wraps a failure of the port.
	ErrTransport = errors.New("slave: transport failure")

	// ErrAlreadyRunning is returned by Listen and Start while the receive
	// loop is running or stopping.
	ErrAlreadyRunning = errors.New("slave: already running")

	// ErrCloseTimeout is returned by Close when the receive loop did not end
	// within the close timeout.
	ErrCloseTimeout = errors.New("slave: close timeout")

	// ErrPortNil is returned by New when no port is given.
	ErrPortNil = errors.New("slave: port is nil")
)

// Slave answers requests addressed to it, or broadcast, on a single port.
//
// Requests are processed strictly one at a time in arrival order. Handlers
// may be registered and removed at any time.
type Slave struct {
	cfg      *Config
	port     transport.Port
	reader   *frame.Reader
	logger   logger.Logger
	handlers *xsync.MapOf[byte, Handler]

	writeMu sync.Mutex // serializes responses

	state     atomicState
	mu        sync.Mutex // protects taskMgr
	taskMgr   *task.Manager
	portClose sync.Once

	metrics Metrics
}

// New returns a Slave on port.
//
// The Slave closes port when Close is called; otherwise the caller keeps
// ownership of it.
func New(port transport.Port, cfg *Config) (*Slave, error) {
	if port == nil {
		return nil, ErrPortNil
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}

	s := &Slave{
		cfg:  cfg,
		port: port,
		reader: frame.NewReader(port, cfg.encoding,
			frame.WithASCIICharTimeout(cfg.asciiCharTimeout),
			frame.WithRTUCharTimeout(cfg.rtuCharTimeout),
		),
		logger: cfg.logger.With(
			"role", "slave",
			"address", cfg.address,
			"encoding", cfg.encoding.String(),
		),
		handlers: xsync.NewMapOf[byte, Handler](),
	}

	return s, nil
}

// Listen runs the receive loop on the calling goroutine until Stop or Close
// is called, ctx is done, or the port fails.
//
// It returns nil after Stop or Close, ctx.Err() when ctx ends the loop, and
// an error wrapping ErrTransport when the port fails.
//
// The running state is checked between frames. Without WithPollInterval,
// an idle loop blocks in the read until a byte arrives or the port is
// closed, so only Close ends it promptly.
func (s *Slave) Listen(ctx context.Context) error {
	if !s.state.ToRunning() {
		return ErrAlreadyRunning
	}
	defer s.state.Set(StateStopped)

	s.logger.Info("slave listening")
	defer s.logger.Info("slave stopped")

	for s.state.IsRunning() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.receiveOnce(); err != nil {
			return s.loopError(err)
		}
	}

	return nil
}

// Start runs the receive loop on a new goroutine and returns at once.
// The loop ends as Listen's does; a port failure is logged.
func (s *Slave) Start(ctx context.Context) error {
	if !s.state.ToRunning() {
		return ErrAlreadyRunning
	}

	mgr := task.NewManager(ctx, s.logger)
	s.mu.Lock()
	s.taskMgr = mgr
	s.mu.Unlock()

	s.logger.Info("slave listening")

	err := mgr.Start("receiveLoop", func() bool {
		if !s.state.IsRunning() {
			return false
		}

		if err := s.receiveOnce(); err != nil {
			if err = s.loopError(err); err != nil {
				s.logger.Error("receive loop terminated", "error", err)
			}

			return false
		}

		return true
	}, func() {
		s.state.Set(StateStopped)
		s.logger.Info("slave stopped")
	})
	if err != nil {
		s.state.Set(StateStopped)
		return err
	}

	return nil
}

// Stop asks the receive loop to end after the frame in progress. It does
// not interrupt a read that is waiting for the first byte of a request.
func (s *Slave) Stop() {
	if s.state.ToStopping() {
		s.logger.Debug("slave stopping")
	}

	s.mu.Lock()
	if s.taskMgr != nil {
		s.taskMgr.Stop()
	}
	s.mu.Unlock()
}

// Close stops the receive loop, closes the port to unblock a pending read,
// and waits up to the close timeout for the loop to end.
func (s *Slave) Close() error {
	s.Stop()

	var closeErr error
	s.portClose.Do(func() {
		if err := s.port.Close(); err != nil && !transport.IsClosed(err) {
			closeErr = fmt.Errorf("%w: close port: %w", ErrTransport, err)
		}
	})

	s.mu.Lock()
	mgr := s.taskMgr
	s.mu.Unlock()

	// a loop started with Start is waited on through its manager; a loop
	// running in Listen is only visible through the state
	var stopped bool
	if mgr != nil && mgr.Count() > 0 {
		stopped = mgr.WaitTimeout(s.cfg.closeTimeout)
	} else {
		stopped = s.waitStopped(s.cfg.closeTimeout)
	}

	if !stopped {
		s.logger.Error("close timeout", "timeout", s.cfg.closeTimeout, "state", s.state.Get().String())
		return ErrCloseTimeout
	}

	return closeErr
}

// waitStopped polls the state until it is Stopped or timeout elapses.
func (s *Slave) waitStopped(timeout time.Duration) bool {
	closeTimer := pool.GetTimer(timeout)
	defer pool.PutTimer(closeTimer)

	checkTicker := time.NewTicker(closeCheckInterval)
	defer checkTicker.Stop()

	for !s.state.IsStopped() {
		select {
		case <-closeTimer.C:
			return s.state.IsStopped()
		case <-checkTicker.C:
		}
	}

	return true
}

// receiveOnce reads, decodes and processes one frame. It returns an error
// only for a failure of the port.
func (s *Slave) receiveOnce() error {
	timeout := transport.NoTimeout
	if s.cfg.pollInterval > 0 {
		timeout = s.cfg.pollInterval
	}

	raw, err := s.reader.ReadFrame(timeout)
	if errors.Is(err, frame.ErrTimeout) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read request: %w", ErrTransport, err)
	}

	s.metrics.incFrameRecvCount()

	req, err := frame.Decode(s.cfg.encoding, raw)
	if err != nil {
		s.metrics.incDecodeErrCount()
		s.logger.Warn("discard invalid frame", "error", err, "length", len(raw))

		return nil
	}

	err = s.ProcessFrame(req)
	switch {
	case err == nil:
	case errors.Is(err, ErrAddressMismatch):
		s.logger.Debug("ignore frame for another address", "frame_address", req.Address)
	case errors.Is(err, ErrUnknownCommand):
		s.logger.Warn("unknown command", "code", req.Code, "frame_address", req.Address)
	case errors.Is(err, ErrTransport):
		return err
	default:
		s.logger.Error("handler failed", "code", req.Code, "error", err)
	}

	return nil
}

// loopError maps the error that ended the loop to Listen's result: a port
// closed by Stop or Close is a normal exit.
func (s *Slave) loopError(err error) error {
	if !s.state.IsRunning() && transport.IsClosed(err) {
		return nil
	}

	return err
}

// ProcessFrame handles a decoded request as the receive loop does: it
// applies the address filter, dispatches to the registered handler, and
// writes the response, if any, encoded with the slave's own address and the
// request's command code.
//
// It returns an error wrapping ErrAddressMismatch, ErrUnknownCommand,
// ErrHandlerPanic, the handler's error, or ErrTransport.
func (s *Slave) ProcessFrame(req frame.Frame) error {
	if !s.cfg.Accepts(req.Address) {
		s.metrics.incIgnoredCount()
		return fmt.Errorf("%w: frame for %d", ErrAddressMismatch, req.Address)
	}

	h, ok := s.handlers.Load(req.Code)
	if !ok {
		s.metrics.incUnknownCmdCount()
		return fmt.Errorf("%w: %d", ErrUnknownCommand, req.Code)
	}

	s.metrics.incDispatchCount()

	body, err := s.callHandler(h, req)
	if err != nil {
		s.metrics.incHandlerErrCount()
		return fmt.Errorf("slave: command %d: %w", req.Code, err)
	}

	if body == nil || req.IsBroadcast() {
		return nil
	}

	return s.respond(frame.NewFrame(s.cfg.address, req.Code, body))
}

func (s *Slave) callHandler(h Handler, req frame.Frame) (body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			body, err = nil, fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	return h.Handle(req)
}

func (s *Slave) respond(resp frame.Frame) error {
	wire, err := frame.Encode(s.cfg.encoding, resp)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	_, err = s.port.Write(wire)
	s.writeMu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: write response: %w", ErrTransport, err)
	}

	s.metrics.incResponseSendCount()
	s.logger.Debug("response sent", "code", resp.Code, "body_len", len(resp.Body))

	return nil
}

// IsRunning reports whether the receive loop is running.
func (s *Slave) IsRunning() bool {
	return s.state.IsRunning()
}

// State returns the state of the receive loop.
func (s *Slave) State() State {
	return s.state.Get()
}

// Metrics returns the slave's counters.
func (s *Slave) Metrics() *Metrics {
	return &s.metrics
}

// Config returns the slave's configuration.
func (s *Slave) Config() *Config {
	return s.cfg
}
