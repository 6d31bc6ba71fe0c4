// Package config loads the endpoint settings of the mbserial command from a
// TOML file. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/master"
	"github.com/arloliu/go-mbserial/transport"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid endpoint")

// Endpoint describes one end of the line and how to reach it.
type Endpoint struct {
	// Port is a serial device such as /dev/ttyUSB0, or tcp://host:port.
	Port   string
	Serial transport.SerialConfig
	Mode   frame.Encoding
	// Address is the slave address: the target of a request, or the
	// listening slave's own address.
	Address byte

	Timeout time.Duration
	Retries int

	// ASCIICharTimeout and RTUCharTimeout are zero unless set; see
	// EffectiveRTUCharTimeout.
	ASCIICharTimeout time.Duration
	RTUCharTimeout   time.Duration
}

// Default returns 9600 8N1, ASCII mode, address 1, and the master's default
// timeout and retry limit.
func Default() Endpoint {
	return Endpoint{
		Serial:  transport.DefaultSerialConfig(),
		Mode:    frame.ASCII,
		Address: 1,
		Timeout: master.DefaultTimeout,
		Retries: master.DefaultRetryLimit,
	}
}

type fileConfig struct {
	Port             string `toml:"port"`
	Baud             int    `toml:"baud"`
	DataBits         int    `toml:"data_bits"`
	Parity           string `toml:"parity"`
	StopBits         string `toml:"stop_bits"`
	Mode             string `toml:"mode"`
	Address          int    `toml:"address"`
	Timeout          string `toml:"timeout"`
	Retries          int    `toml:"retries"`
	ASCIICharTimeout string `toml:"ascii_char_timeout"`
	RTUCharTimeout   string `toml:"rtu_char_timeout"`
}

// Load returns Default overlaid with the keys defined in the TOML file at
// path, validated.
func Load(path string) (Endpoint, error) {
	ep := Default()
	if err := ep.LoadFile(path); err != nil {
		return Endpoint{}, err
	}

	if err := ep.Validate(); err != nil {
		return Endpoint{}, err
	}

	return ep, nil
}

// LoadFile overlays ep with the keys defined in the TOML file at path. Keys
// missing from the file leave ep unchanged.
func (ep *Endpoint) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("port") {
		ep.Port = strings.TrimSpace(raw.Port)
	}

	if meta.IsDefined("baud") {
		ep.Serial.BaudRate = raw.Baud
	}

	if meta.IsDefined("data_bits") {
		ep.Serial.DataBits = raw.DataBits
	}

	if meta.IsDefined("parity") {
		p, err := transport.ParseParity(raw.Parity)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		ep.Serial.Parity = p
	}

	if meta.IsDefined("stop_bits") {
		sb, err := transport.ParseStopBits(raw.StopBits)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		ep.Serial.StopBits = sb
	}

	if meta.IsDefined("mode") {
		enc, err := frame.ParseEncoding(raw.Mode)
		if err != nil {
			return fmt.Errorf("%w: mode: %w", ErrInvalid, err)
		}
		ep.Mode = enc
	}

	if meta.IsDefined("address") {
		if raw.Address < 0 || raw.Address > 255 {
			return fmt.Errorf("%w: address %d out of range [0, 255]", ErrInvalid, raw.Address)
		}
		ep.Address = byte(raw.Address)
	}

	if meta.IsDefined("timeout") {
		if ep.Timeout, err = parseDuration("timeout", raw.Timeout); err != nil {
			return err
		}
	}

	if meta.IsDefined("retries") {
		ep.Retries = raw.Retries
	}

	if meta.IsDefined("ascii_char_timeout") {
		if ep.ASCIICharTimeout, err = parseDuration("ascii_char_timeout", raw.ASCIICharTimeout); err != nil {
			return err
		}
	}

	if meta.IsDefined("rtu_char_timeout") {
		if ep.RTUCharTimeout, err = parseDuration("rtu_char_timeout", raw.RTUCharTimeout); err != nil {
			return err
		}
	}

	return nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %w", ErrInvalid, key, err)
	}

	return d, nil
}

// Validate checks the settings shared by both roles. Address 0 is valid
// here, as a broadcast target.
func (ep Endpoint) Validate() error {
	if err := ep.Serial.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !ep.Mode.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalid, frame.ErrInvalidEncoding)
	}
	if ep.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalid, ep.Timeout)
	}
	if ep.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative, got %d", ErrInvalid, ep.Retries)
	}
	if ep.ASCIICharTimeout < 0 || ep.RTUCharTimeout < 0 {
		return fmt.Errorf("%w: char timeouts must not be negative", ErrInvalid)
	}

	return nil
}

// EffectiveASCIICharTimeout returns the configured ASCII inter-character
// timeout, or frame.DefaultASCIICharTimeout.
func (ep Endpoint) EffectiveASCIICharTimeout() time.Duration {
	if ep.ASCIICharTimeout > 0 {
		return ep.ASCIICharTimeout
	}

	return frame.DefaultASCIICharTimeout
}

// EffectiveRTUCharTimeout returns the configured RTU inter-character
// timeout, or 3.5 character times at the configured baud rate but no less
// than frame.DefaultRTUCharTimeout.
func (ep Endpoint) EffectiveRTUCharTimeout() time.Duration {
	if ep.RTUCharTimeout > 0 {
		return ep.RTUCharTimeout
	}

	return max(transport.RTUCharTimeout(ep.Serial.BaudRate), frame.DefaultRTUCharTimeout)
}

// IsTCP reports whether Port names a TCP endpoint.
func (ep Endpoint) IsTCP() bool {
	return strings.HasPrefix(ep.Port, tcpScheme)
}

// TCPAddress returns Port without its tcp:// scheme.
func (ep Endpoint) TCPAddress() string {
	return strings.TrimPrefix(ep.Port, tcpScheme)
}

const tcpScheme = "tcp://"
