// Package pool recycles timers used for bounded waits on hot paths such as
// per-byte reads.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer that fires after d.
//
// The timer must be handed back with PutTimer once the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer) // only *time.Timer values are stored
	t.Reset(d)

	return t
}

// PutTimer stops t and stores it for reuse.
//
// t must not be used by the caller afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// fired but not received
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
