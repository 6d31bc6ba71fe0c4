package master

import "sync/atomic"

// Metrics contains atomic counters of a Master.
// Each counter can be exported as the value of a prometheus CounterFunc.
type Metrics struct {
	// TransactionCount is the number of Send calls.
	TransactionCount atomic.Uint64
	// TransmissionCount is the number of requests written to the port, retries included.
	TransmissionCount atomic.Uint64
	// RetryCount is the number of retransmissions.
	RetryCount atomic.Uint64
	// SuccessCount is the number of transactions that completed successfully.
	SuccessCount atomic.Uint64
	// FailureCount is the number of transactions that failed.
	FailureCount atomic.Uint64
	// NoResponseCount is the number of requests sent without awaiting a response.
	NoResponseCount atomic.Uint64

	// TimeoutCount is the number of attempts that received no response.
	TimeoutCount atomic.Uint64
	// InvalidResponseCount is the number of attempts whose response failed to decode.
	InvalidResponseCount atomic.Uint64
	// UnmatchedResponseCount is the number of valid frames dropped because their
	// address or command code did not match the request.
	UnmatchedResponseCount atomic.Uint64
}

func (m *Metrics) incTransactionCount()       { m.TransactionCount.Add(1) }
func (m *Metrics) incTransmissionCount()      { m.TransmissionCount.Add(1) }
func (m *Metrics) incRetryCount()             { m.RetryCount.Add(1) }
func (m *Metrics) incSuccessCount()           { m.SuccessCount.Add(1) }
func (m *Metrics) incFailureCount()           { m.FailureCount.Add(1) }
func (m *Metrics) incNoResponseCount()        { m.NoResponseCount.Add(1) }
func (m *Metrics) incTimeoutCount()           { m.TimeoutCount.Add(1) }
func (m *Metrics) incInvalidResponseCount()   { m.InvalidResponseCount.Add(1) }
func (m *Metrics) incUnmatchedResponseCount() { m.UnmatchedResponseCount.Add(1) }
