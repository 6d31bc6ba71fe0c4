package master

import "sync/atomic"

// TxState is the phase of the transaction a Master is running.
type TxState uint32

const (
	// TxIdle means no transaction is in flight.
	TxIdle TxState = iota
	// TxEncoding means the request is being encoded.
	TxEncoding
	// TxTransmitted means the request was written to the port.
	TxTransmitted
	// TxAwaitingResponse means the master is reading the response.
	TxAwaitingResponse
	// TxValidated means a response passed decoding and the checksum check.
	TxValidated
	// TxTimedOut means the last attempt produced no valid response.
	TxTimedOut
)

func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "Idle"
	case TxEncoding:
		return "Encoding"
	case TxTransmitted:
		return "Transmitted"
	case TxAwaitingResponse:
		return "AwaitingResponse"
	case TxValidated:
		return "Validated"
	case TxTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

type atomicTxState struct {
	state atomic.Uint32
}

func (st *atomicTxState) Get() TxState {
	return TxState(st.state.Load())
}

func (st *atomicTxState) Set(state TxState) {
	st.state.Store(uint32(state))
}
