// Package frame implements the two serial framings of the protocol and the
// recovery of frame boundaries from a raw byte stream.
//
// # Encodings
//
// An ASCII frame is printable text:
//
//	':' | address (2 hex) | command (2 hex) | body (2N hex) | LRC (2 hex) | CR LF
//
// Hex digits are sent upper-case and accepted in either case.
//
// An RTU frame is raw binary with no delimiters:
//
//	address (1) | command (1) | body (N) | CRC low (1) | CRC high (1)
//
// # Frame boundaries
//
// ASCII frames end at the LF terminator. RTU frames carry no length and no
// terminator; the [Reader] treats the first gap of silence longer than the
// inter-character timeout as the end of a frame.
//
// Validation is left to [Decode]: the reader returns whatever bytes make up
// one frame on the line, well-formed or not.
package frame
