package master

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/logger"
)

const (
	// DefaultTimeout is the default time to wait for the first byte of a response.
	DefaultTimeout = 5 * time.Second
	// MinTimeout is the shortest accepted transaction timeout.
	MinTimeout = time.Millisecond
	// MaxTimeout is the longest accepted transaction timeout.
	MaxTimeout = 10 * time.Minute

	// DefaultRetryLimit is the default number of retransmissions after the first attempt.
	DefaultRetryLimit = 3
	// MaxRetryLimit bounds the retry limit.
	MaxRetryLimit = 100
)

var (
	// ErrConfigNil is returned when an option is applied to a nil Config.
	ErrConfigNil = errors.New("master: config is nil")
	// ErrInvalidConfig is returned for an out-of-range option value.
	ErrInvalidConfig = errors.New("master: invalid config")
)

// NoResponseFunc reports whether a request to addr with the given command
// code expects no response. Broadcast requests never expect one, whatever
// the function returns.
type NoResponseFunc func(addr, code byte) bool

// ResponseHandler receives every validated response.
type ResponseHandler func(resp frame.Frame)

// Config holds the settings of a Master. It is immutable after NewConfig
// returns; Master.SetTimeout and Master.SetRetryLimit change the values a
// running Master uses.
type Config struct {
	// encoding is the wire framing.
	// Defaults to ASCII.
	encoding frame.Encoding

	// timeout bounds the wait for the first byte of a response. Must be
	// between 1ms and 10 minutes.
	// Defaults to 5 seconds.
	timeout time.Duration

	// retryLimit is the number of retransmissions after the first attempt,
	// so a transaction transmits at most retryLimit+1 times.
	// Defaults to 3.
	retryLimit int

	// asciiCharTimeout is the longest gap between two characters of an
	// ASCII response.
	// Defaults to frame.DefaultASCIICharTimeout.
	asciiCharTimeout time.Duration

	// rtuCharTimeout is the silence that ends an RTU response.
	// Defaults to frame.DefaultRTUCharTimeout.
	rtuCharTimeout time.Duration

	noResponse      NoResponseFunc
	responseHandler ResponseHandler
	logger          logger.Logger
}

// NewConfig returns a Config with default values and the given options applied.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		encoding:         frame.ASCII,
		timeout:          DefaultTimeout,
		retryLimit:       DefaultRetryLimit,
		asciiCharTimeout: frame.DefaultASCIICharTimeout,
		rtuCharTimeout:   frame.DefaultRTUCharTimeout,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *Config) Encoding() frame.Encoding { return cfg.encoding }

func (cfg *Config) Timeout() time.Duration { return cfg.timeout }

func (cfg *Config) RetryLimit() int { return cfg.retryLimit }

func (cfg *Config) ASCIICharTimeout() time.Duration { return cfg.asciiCharTimeout }

func (cfg *Config) RTUCharTimeout() time.Duration { return cfg.rtuCharTimeout }

func (cfg *Config) Logger() logger.Logger { return cfg.logger }

// ExpectsResponse reports whether a request to addr with the given code
// waits for a response.
func (cfg *Config) ExpectsResponse(addr, code byte) bool {
	if addr == frame.BroadcastAddress {
		return false
	}
	if cfg.noResponse != nil && cfg.noResponse(addr, code) {
		return false
	}

	return true
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

// WithTimeout sets the time to wait for the first byte of each response.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := validateTimeout(d); err != nil {
			return err
		}
		cfg.timeout = d

		return nil
	})
}

// WithRetryLimit sets the number of retransmissions after the first attempt.
// Zero disables retries.
func WithRetryLimit(n int) Option {
	return optFunc(func(cfg *Config) error {
		if err := validateRetryLimit(n); err != nil {
			return err
		}
		cfg.retryLimit = n

		return nil
	})
}

// WithASCIICharTimeout sets the inter-character timeout of ASCII responses.
func WithASCIICharTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: ASCII char timeout must be positive, got %v", ErrInvalidConfig, d)
		}
		cfg.asciiCharTimeout = d

		return nil
	})
}

// WithRTUCharTimeout sets the silence that ends an RTU response.
func WithRTUCharTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: RTU char timeout must be positive, got %v", ErrInvalidConfig, d)
		}
		cfg.rtuCharTimeout = d

		return nil
	})
}

// WithNoResponse adds a rule for requests that expect no response, on top
// of broadcast requests.
func WithNoResponse(fn NoResponseFunc) Option {
	return optFunc(func(cfg *Config) error {
		cfg.noResponse = fn
		return nil
	})
}

// WithResponseHandler sets a function called with every validated response.
func WithResponseHandler(fn ResponseHandler) Option {
	return optFunc(func(cfg *Config) error {
		cfg.responseHandler = fn
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

func validateTimeout(d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return fmt.Errorf("%w: timeout %v is out of range [%v, %v]", ErrInvalidConfig, d, MinTimeout, MaxTimeout)
	}

	return nil
}

func validateRetryLimit(n int) error {
	if n < 0 || n > MaxRetryLimit {
		return fmt.Errorf("%w: retry limit %d is out of range [0, %d]", ErrInvalidConfig, n, MaxRetryLimit)
	}

	return nil
}
