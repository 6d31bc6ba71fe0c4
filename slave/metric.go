package slave

import "sync/atomic"

// Metrics contains atomic counters of a Slave.
// Each counter can be exported as the value of a prometheus CounterFunc.
type Metrics struct {
	// FrameRecvCount is the number of frames read from the port, valid or not.
	FrameRecvCount atomic.Uint64
	// DecodeErrCount is the number of frames that failed to decode.
	DecodeErrCount atomic.Uint64
	// IgnoredCount is the number of valid frames addressed to another slave.
	IgnoredCount atomic.Uint64
	// DispatchCount is the number of frames passed to a handler.
	DispatchCount atomic.Uint64
	// UnknownCmdCount is the number of frames with no registered handler.
	UnknownCmdCount atomic.Uint64
	// HandlerErrCount is the number of handler calls that failed or panicked.
	HandlerErrCount atomic.Uint64
	// ResponseSendCount is the number of responses written to the port.
	ResponseSendCount atomic.Uint64
}

func (m *Metrics) incFrameRecvCount()    { m.FrameRecvCount.Add(1) }
func (m *Metrics) incDecodeErrCount()    { m.DecodeErrCount.Add(1) }
func (m *Metrics) incIgnoredCount()      { m.IgnoredCount.Add(1) }
func (m *Metrics) incDispatchCount()     { m.DispatchCount.Add(1) }
func (m *Metrics) incUnknownCmdCount()   { m.UnknownCmdCount.Add(1) }
func (m *Metrics) incHandlerErrCount()   { m.HandlerErrCount.Add(1) }
func (m *Metrics) incResponseSendCount() { m.ResponseSendCount.Add(1) }
