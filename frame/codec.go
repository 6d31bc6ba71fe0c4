package frame

import (
	"bytes"
	"encoding/hex"

	"github.com/arloliu/go-mbserial/checksum"
)

const (
	// asciiStart begins every ASCII frame.
	asciiStart = ':'

	// minRTUFrameSize is address + command + 2-byte CRC. An empty body is legal.
	minRTUFrameSize = 2 + checksum.CRC16Size

	// minASCIIFrameSize is ':' + address, command and LRC in hex + CR LF.
	minASCIIFrameSize = 1 + 2*(2+checksum.LRCSize) + 2
)

var asciiEnd = []byte{'\r', '\n'}

const upperHex = "0123456789ABCDEF"

// Encode returns the wire form of f in the given encoding.
//
// The checksum is computed over address, command and body. The only error is
// ErrInvalidEncoding.
func Encode(enc Encoding, f Frame) ([]byte, error) {
	raw := f.raw()

	switch enc {
	case ASCII:
		return encodeASCII(raw), nil
	case RTU:
		return checksum.AppendCRC16(raw), nil
	default:
		return nil, ErrInvalidEncoding
	}
}

func encodeASCII(raw []byte) []byte {
	lrc := checksum.LRC(raw)

	out := make([]byte, 0, 1+2*(len(raw)+1)+len(asciiEnd))
	out = append(out, asciiStart)
	for _, b := range raw {
		out = append(out, upperHex[b>>4], upperHex[b&0x0F])
	}
	out = append(out, upperHex[lrc>>4], upperHex[lrc&0x0F])

	return append(out, asciiEnd...)
}

// Decode validates a wire frame and returns its logical content.
//
// It fails with ErrMalformedFrame when the framing is wrong and with a
// *ChecksumError (matching ErrChecksumMismatch) when the checksum disagrees.
// Decode does not retain raw.
func Decode(enc Encoding, raw []byte) (Frame, error) {
	switch enc {
	case ASCII:
		return decodeASCII(raw)
	case RTU:
		return decodeRTU(raw)
	default:
		return Frame{}, ErrInvalidEncoding
	}
}

func decodeASCII(raw []byte) (Frame, error) {
	if len(raw) == 0 || raw[0] != asciiStart {
		return Frame{}, malformed("missing ':' prefix")
	}
	if !bytes.HasSuffix(raw, asciiEnd) {
		return Frame{}, malformed("missing CR LF suffix")
	}
	if len(raw) < minASCIIFrameSize {
		return Frame{}, malformed("ASCII frame too short: %d bytes, want at least %d", len(raw), minASCIIFrameSize)
	}

	text := raw[1 : len(raw)-len(asciiEnd)]
	if len(text)%2 != 0 {
		return Frame{}, malformed("odd number of hex characters: %d", len(text))
	}

	data := make([]byte, len(text)/2)
	if _, err := hex.Decode(data, text); err != nil {
		return Frame{}, malformed("invalid hex: %v", err)
	}

	content, received := data[:len(data)-1], data[len(data)-1]
	if computed := checksum.LRC(content); computed != received {
		return Frame{}, &ChecksumError{Encoding: ASCII, Received: uint16(received), Computed: uint16(computed)}
	}

	return fromContent(content), nil
}

func decodeRTU(raw []byte) (Frame, error) {
	if len(raw) < minRTUFrameSize {
		return Frame{}, malformed("RTU frame too short: %d bytes, want at least %d", len(raw), minRTUFrameSize)
	}

	content := raw[:len(raw)-checksum.CRC16Size]
	received := uint16(raw[len(raw)-2]) | uint16(raw[len(raw)-1])<<8
	if computed := checksum.CRC16(content); computed != received {
		return Frame{}, &ChecksumError{Encoding: RTU, Received: received, Computed: computed}
	}

	return fromContent(content), nil
}

// fromContent splits address + command + body, copying the body.
func fromContent(content []byte) Frame {
	return NewFrame(content[0], content[1], content[2:])
}
