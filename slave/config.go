package slave

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/logger"
)

const (
	// DefaultCloseTimeout is the default time Close waits for the receive loop to end.
	DefaultCloseTimeout = 3 * time.Second
	// MinCloseTimeout is the shortest accepted close timeout.
	MinCloseTimeout = 10 * time.Millisecond
	// MaxCloseTimeout is the longest accepted close timeout.
	MaxCloseTimeout = 30 * time.Second
)

var (
	// ErrConfigNil is returned when an option is applied to a nil Config.
	ErrConfigNil = errors.New("slave: config is nil")
	// ErrInvalidConfig is returned for an out-of-range option value.
	ErrInvalidConfig = errors.New("slave: invalid config")
)

// Config holds the settings of a Slave.
type Config struct {
	// address is the slave's own unit address, 1 to 255.
	address byte

	// encoding is the wire framing.
	// Defaults to ASCII.
	encoding frame.Encoding

	asciiCharTimeout time.Duration
	rtuCharTimeout   time.Duration

	// pollInterval bounds each wait for the first byte of a request so the
	// receive loop re-checks its running state. Zero waits indefinitely.
	// Defaults to 0.
	pollInterval time.Duration

	// closeTimeout bounds how long Close waits for the receive loop to end.
	// Defaults to 3 seconds.
	closeTimeout time.Duration

	logger logger.Logger
}

// NewConfig returns a Config for a slave with the given address. Address 0
// is the broadcast address and is rejected.
func NewConfig(addr byte, opts ...Option) (*Config, error) {
	if addr == frame.BroadcastAddress {
		return nil, fmt.Errorf("%w: address %d is reserved for broadcast", ErrInvalidConfig, addr)
	}

	cfg := &Config{
		address:          addr,
		encoding:         frame.ASCII,
		asciiCharTimeout: frame.DefaultASCIICharTimeout,
		rtuCharTimeout:   frame.DefaultRTUCharTimeout,
		closeTimeout:     DefaultCloseTimeout,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *Config) Address() byte { return cfg.address }

func (cfg *Config) Encoding() frame.Encoding { return cfg.encoding }

func (cfg *Config) ASCIICharTimeout() time.Duration { return cfg.asciiCharTimeout }

func (cfg *Config) RTUCharTimeout() time.Duration { return cfg.rtuCharTimeout }

func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

func (cfg *Config) CloseTimeout() time.Duration { return cfg.closeTimeout }

func (cfg *Config) Logger() logger.Logger { return cfg.logger }

// Accepts reports whether a request to addr is processed: requests to the
// slave's own address and broadcast requests are.
func (cfg *Config) Accepts(addr byte) bool {
	return addr == cfg.address || addr == frame.BroadcastAddress
}

// Option configures a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}

	return f(cfg)
}

// WithEncoding sets the wire framing, ASCII or RTU.
func WithEncoding(enc frame.Encoding) Option {
	return optFunc(func(cfg *Config) error {
		if !enc.Valid() {
			return fmt.Errorf("%w: %w: %d", ErrInvalidConfig, frame.ErrInvalidEncoding, uint8(enc))
		}
		cfg.encoding = enc

		return nil
	})
}

// WithASCIICharTimeout sets the longest gap between two characters of an
// ASCII request.
func WithASCIICharTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: ASCII char timeout must be positive, got %v", ErrInvalidConfig, d)
		}
		cfg.asciiCharTimeout = d

		return nil
	})
}

// WithRTUCharTimeout sets the silence that ends an RTU request.
func WithRTUCharTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: RTU char timeout must be positive, got %v", ErrInvalidConfig, d)
		}
		cfg.rtuCharTimeout = d

		return nil
	})
}

// WithPollInterval bounds each wait for a request's first byte, so Stop
// takes effect within d even when the line is idle. Zero waits indefinitely.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return fmt.Errorf("%w: poll interval must not be negative, got %v", ErrInvalidConfig, d)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for the receive loop to end.
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinCloseTimeout || d > MaxCloseTimeout {
			return fmt.Errorf("%w: close timeout %v is out of range [%v, %v]",
				ErrInvalidConfig, d, MinCloseTimeout, MaxCloseTimeout)
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithLogger sets the logger. A nil logger keeps the package default.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}
