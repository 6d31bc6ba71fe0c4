package slave

import "sync/atomic"

// State is the running state of a Slave's receive loop.
type State uint32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

type atomicState struct {
	state atomic.Uint32
}

func (st *atomicState) Get() State {
	return State(st.state.Load())
}

func (st *atomicState) Set(state State) {
	st.state.Store(uint32(state))
}

func (st *atomicState) IsRunning() bool {
	return st.Get() == StateRunning
}

func (st *atomicState) IsStopped() bool {
	return st.Get() == StateStopped
}

// ToRunning moves Stopped to Running.
func (st *atomicState) ToRunning() bool {
	return st.state.CompareAndSwap(uint32(StateStopped), uint32(StateRunning))
}

// ToStopping moves Running to Stopping.
func (st *atomicState) ToStopping() bool {
	return st.state.CompareAndSwap(uint32(StateRunning), uint32(StateStopping))
}
