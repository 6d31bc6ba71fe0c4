package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned by Decode for a frame with missing
	// delimiters, invalid hex or a wrong length.
	ErrMalformedFrame = errors.New("frame: malformed frame")

	// ErrChecksumMismatch is matched by every *ChecksumError.
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")

	// ErrTimeout is returned by Reader.ReadFrame when no byte arrived within
	// the read window.
	ErrTimeout = errors.New("frame: read timeout")

	// ErrInvalidEncoding is returned for an Encoding other than ASCII or RTU.
	ErrInvalidEncoding = errors.New("frame: invalid encoding")
)

// ChecksumError reports a frame whose embedded checksum disagrees with the
// one computed over its content.
type ChecksumError struct {
	Encoding Encoding
	Received uint16 // checksum carried by the frame
	Computed uint16 // checksum computed over address, command and body
}

func (e *ChecksumError) Error() string {
	if e.Encoding == ASCII {
		return fmt.Sprintf("frame: LRC mismatch: received 0x%02X, computed 0x%02X", e.Received, e.Computed)
	}

	return fmt.Sprintf("frame: CRC mismatch: received 0x%04X, computed 0x%04X", e.Received, e.Computed)
}

// Is makes errors.Is(err, ErrChecksumMismatch) true for a *ChecksumError.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}
