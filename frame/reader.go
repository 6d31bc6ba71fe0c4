package frame

import (
	"bufio"
	"errors"
	"time"

	"github.com/arloliu/go-mbserial/transport"
)

const (
	// DefaultASCIICharTimeout is the longest gap tolerated between two
	// characters of one ASCII frame.
	DefaultASCIICharTimeout = time.Second

	// DefaultRTUCharTimeout is the silence that ends an RTU frame. It is above
	// 3.5 character times for every baud rate from 9600 up, leaving margin
	// for operating system and USB adapter latency.
	DefaultRTUCharTimeout = 10 * time.Millisecond

	// MaxFrameSize bounds the bytes accumulated for a single frame. A frame
	// that reaches it is returned as is and rejected by Decode.
	MaxFrameSize = 1024

	readBufferSize = 256
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithASCIICharTimeout sets the inter-character timeout of ASCII frames.
func WithASCIICharTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) {
		if d > 0 {
			r.asciiCharTimeout = d
		}
	}
}

// WithRTUCharTimeout sets the silence that ends an RTU frame.
func WithRTUCharTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) {
		if d > 0 {
			r.rtuCharTimeout = d
		}
	}
}

// Reader extracts one frame's worth of raw bytes at a time from a Port.
//
// Bytes read from the port past the end of an ASCII frame are kept for the
// next call. A Reader is not safe for concurrent use.
type Reader struct {
	port             transport.Port
	encoding         Encoding
	asciiCharTimeout time.Duration
	rtuCharTimeout   time.Duration

	buffered *bufio.Reader
}

// errReadTimeout marks a port read that timed out without data, so that
// bufio.Reader returns instead of retrying the empty read.
var errReadTimeout = errors.New("frame: read timed out")

type portReader struct {
	port transport.Port
}

func (p portReader) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && err == nil {
		return 0, errReadTimeout
	}

	return n, err
}

// NewReader returns a Reader for frames of the given encoding on port.
func NewReader(port transport.Port, enc Encoding, opts ...ReaderOption) *Reader {
	r := &Reader{
		port:             port,
		encoding:         enc,
		asciiCharTimeout: DefaultASCIICharTimeout,
		rtuCharTimeout:   DefaultRTUCharTimeout,
		buffered:         bufio.NewReaderSize(portReader{port: port}, readBufferSize),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Encoding returns the encoding the reader delimits.
func (r *Reader) Encoding() Encoding { return r.encoding }

// ReadFrame reads the raw bytes of the next frame.
//
// The first byte is awaited for up to timeout; transport.NoTimeout waits
// indefinitely. If nothing arrives, ReadFrame returns ErrTimeout.
//
// ASCII frames are read up to and including the LF. The frame ends early,
// with the bytes read so far, when a gap exceeds the ASCII inter-character
// timeout or, for a finite timeout, when the overall deadline passes.
//
// RTU frames end at the first gap longer than the RTU inter-character timeout.
//
// A transport error is returned together with any bytes already read.
func (r *Reader) ReadFrame(timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	first, err := r.readByte(timeout)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1, 64)
	out[0] = first

	switch r.encoding {
	case ASCII:
		return r.readASCII(out, deadline)
	case RTU:
		return r.readRTU(out)
	default:
		return out, ErrInvalidEncoding
	}
}

func (r *Reader) readASCII(out []byte, deadline time.Time) ([]byte, error) {
	for out[len(out)-1] != '\n' && len(out) < MaxFrameSize {
		gap := r.asciiCharTimeout
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return out, nil
			}
			gap = min(gap, remaining)
		}

		b, err := r.readByte(gap)
		if errors.Is(err, ErrTimeout) {
			return out, nil
		}
		if err != nil {
			return out, err
		}

		out = append(out, b)
	}

	return out, nil
}

func (r *Reader) readRTU(out []byte) ([]byte, error) {
	for len(out) < MaxFrameSize {
		b, err := r.readByte(r.rtuCharTimeout)
		if errors.Is(err, ErrTimeout) {
			return out, nil
		}
		if err != nil {
			return out, err
		}

		out = append(out, b)
	}

	return out, nil
}

// readByte returns the next byte. The port's read timeout is set only when
// nothing is buffered, since only then does ReadByte reach the port.
func (r *Reader) readByte(timeout time.Duration) (byte, error) {
	if r.buffered.Buffered() == 0 {
		if err := r.port.SetReadTimeout(timeout); err != nil {
			return 0, err
		}
	}

	b, err := r.buffered.ReadByte()
	if errors.Is(err, errReadTimeout) {
		return 0, ErrTimeout
	}

	return b, err
}

// Buffered returns the number of bytes read from the port but not yet
// returned by ReadFrame.
func (r *Reader) Buffered() int {
	return r.buffered.Buffered()
}

// Discard drops buffered bytes and flushes the port's input, so the next
// ReadFrame only sees bytes that arrive afterwards.
func (r *Reader) Discard() error {
	r.buffered.Reset(portReader{port: r.port})

	return r.port.ResetInputBuffer()
}
