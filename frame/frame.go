package frame

import (
	"bytes"
	"fmt"
)

// BroadcastAddress addresses every slave on the line. Broadcast requests are
// processed by all slaves and answered by none.
const BroadcastAddress byte = 0

// Frame is the logical content of one protocol message, independent of its
// encoding.
//
// A Frame is a value: Decode always allocates a fresh Body and Encode never
// retains it, so callers must not mutate a Body they did not create.
type Frame struct {
	Address byte   // unit address, 0 = broadcast
	Code    byte   // command code
	Body    []byte // command data, may be empty
}

// NewFrame returns a Frame holding a copy of body.
func NewFrame(addr, code byte, body []byte) Frame {
	f := Frame{Address: addr, Code: code}
	if len(body) > 0 {
		f.Body = append([]byte(nil), body...)
	}

	return f
}

// IsBroadcast reports whether the frame is addressed to every slave.
func (f Frame) IsBroadcast() bool {
	return f.Address == BroadcastAddress
}

// Equal reports whether f and other carry the same address, code and body.
// A nil body equals an empty one.
func (f Frame) Equal(other Frame) bool {
	return f.Address == other.Address && f.Code == other.Code && bytes.Equal(f.Body, other.Body)
}

// String formats the frame for logs.
func (f Frame) String() string {
	return fmt.Sprintf("addr=%d code=%d body=% X", f.Address, f.Code, f.Body)
}

// raw returns address, code and body concatenated: the checksum input.
func (f Frame) raw() []byte {
	buf := make([]byte, 0, 2+len(f.Body)+2)
	buf = append(buf, f.Address, f.Code)

	return append(buf, f.Body...)
}
