package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Default serial line settings (9600 8N1).
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultParity   = serial.NoParity
	DefaultStopBits = serial.OneStopBit
)

// SerialConfig holds the line settings of a serial port.
type SerialConfig struct {
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// DefaultSerialConfig returns 9600 baud, 8 data bits, no parity, one stop bit.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		Parity:   DefaultParity,
		StopBits: DefaultStopBits,
	}
}

// Validate checks the baud rate and data bits.
func (c SerialConfig) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("transport: invalid baud rate %d", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("transport: data bits %d out of range [5, 8]", c.DataBits)
	}

	return nil
}

func (c SerialConfig) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity,
		StopBits: c.StopBits,
	}
}

// ParseParity parses N, E, O, M or S (case-insensitive, full names accepted).
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N", "NONE", "":
		return serial.NoParity, nil
	case "E", "EVEN":
		return serial.EvenParity, nil
	case "O", "ODD":
		return serial.OddParity, nil
	case "M", "MARK":
		return serial.MarkParity, nil
	case "S", "SPACE":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("transport: invalid parity %q", s)
	}
}

// ParseStopBits parses "1", "1.5" or "2".
func ParseStopBits(s string) (serial.StopBits, error) {
	switch strings.TrimSpace(s) {
	case "1", "":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("transport: invalid stop bits %q", s)
	}
}

// RTUCharTimeout returns 3.5 character times at baud, the silence that
// separates two RTU frames. A character is 11 bits on the wire. Above 19200
// baud the fixed value of 1.75ms is used.
func RTUCharTimeout(baud int) time.Duration {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if baud > 19200 {
		return 1750 * time.Microsecond
	}

	br := time.Duration(baud)
	bit := (time.Second + br - 1) / br

	return (bit*11*7 + 1) / 2
}

// SerialPort is a Port backed by an operating system serial device.
type SerialPort struct {
	name string
	port serial.Port
	cfg  SerialConfig
}

var _ Port = (*SerialPort)(nil)

// OpenSerial opens the named serial device with the given line settings.
func OpenSerial(name string, cfg SerialConfig) (*SerialPort, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	port, err := serial.Open(name, cfg.mode())
	if err != nil {
		return nil, fmt.Errorf("transport: open serial port %s: %w", name, err)
	}

	return &SerialPort{name: name, port: port, cfg: cfg}, nil
}

// Name returns the device name the port was opened with.
func (p *SerialPort) Name() string { return p.name }

// Config returns the current line settings.
func (p *SerialPort) Config() SerialConfig { return p.cfg }

// Configure changes the line settings of an open port.
func (p *SerialPort) Configure(cfg SerialConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := p.port.SetMode(cfg.mode()); err != nil {
		return mapSerialError(err)
	}
	p.cfg = cfg

	return nil
}

func (p *SerialPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)

	return n, mapSerialError(err)
}

func (p *SerialPort) Write(b []byte) (int, error) {
	n, err := p.port.Write(b)

	return n, mapSerialError(err)
}

// SetReadTimeout sets the timeout of subsequent Read calls. NoTimeout blocks.
func (p *SerialPort) SetReadTimeout(t time.Duration) error {
	if t < 0 {
		t = serial.NoTimeout
	}

	return mapSerialError(p.port.SetReadTimeout(t))
}

// ResetInputBuffer flushes the driver's receive buffer.
func (p *SerialPort) ResetInputBuffer() error {
	return mapSerialError(p.port.ResetInputBuffer())
}

// Close closes the device, unblocking any pending Read.
func (p *SerialPort) Close() error {
	return mapSerialError(p.port.Close())
}

func mapSerialError(err error) error {
	if err == nil {
		return nil
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}
