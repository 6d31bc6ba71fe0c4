// Package master implements the requesting side of the protocol.
//
// A Master owns one transport.Port and runs one transaction at a time:
// it encodes a request, discards stale input, transmits, and waits for a
// single response frame which it decodes and validates. An attempt that
// times out or yields a malformed or corrupted response is retried up to the
// configured retry limit, so a transaction transmits at most retryLimit+1
// times. Failures of the transport itself are not retried.
//
// Requests to the broadcast address, and requests matched by the
// no-response rule set with WithNoResponse, complete as soon as they are
// transmitted. Nothing is read for them.
//
// Basic usage:
//
//	port, _ := transport.OpenSerial("/dev/ttyUSB0", transport.DefaultSerialConfig())
//	cfg, _ := master.NewConfig(master.WithEncoding(frame.RTU), master.WithRetryLimit(2))
//	m, _ := master.New(port, cfg)
//	resp, err := m.Send(ctx, 1, command.CodeReadText, nil)
package master
