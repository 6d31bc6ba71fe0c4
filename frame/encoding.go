package frame

import (
	"fmt"
	"strings"

	"github.com/arloliu/go-mbserial/checksum"
)

// Encoding selects the framing used on the wire. It is fixed for the lifetime
// of an endpoint.
type Encoding uint8

const (
	// ASCII is the delimited hex framing protected by an LRC.
	ASCII Encoding = iota + 1
	// RTU is the binary framing protected by a CRC-16.
	RTU
)

func (e Encoding) String() string {
	switch e {
	case ASCII:
		return "ASCII"
	case RTU:
		return "RTU"
	default:
		return fmt.Sprintf("Encoding(%d)", uint8(e))
	}
}

// Valid reports whether e is ASCII or RTU.
func (e Encoding) Valid() bool {
	return e == ASCII || e == RTU
}

// ChecksumSize returns the number of raw checksum bytes of the encoding:
// one LRC byte for ASCII, two CRC bytes for RTU. It returns 0 for an
// invalid encoding.
func (e Encoding) ChecksumSize() int {
	switch e {
	case ASCII:
		return checksum.LRCSize
	case RTU:
		return checksum.CRC16Size
	default:
		return 0
	}
}

// ParseEncoding parses "ascii" or "rtu", case-insensitively.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASCII":
		return ASCII, nil
	case "RTU":
		return RTU, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidEncoding, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e Encoding) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEncoding, uint8(e))
	}

	return []byte(strings.ToLower(e.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Encoding) UnmarshalText(text []byte) error {
	enc, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*e = enc

	return nil
}
