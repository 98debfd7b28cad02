package flow

import (
	"sync/atomic"
	"time"
)

// sleepIncrement bounds how long a run can stay unresponsive to Cancel while
// sleeping.
const sleepIncrement = 500 * time.Millisecond

// CancelToken requests that a run stop. It is level-triggered: once cancelled
// it stays cancelled, and the run checks it between blocks and between sleep
// increments. It never interrupts a network call already in flight.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken returns a token in the not-cancelled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel marks the token. Safe to call from any goroutine, any number of
// times.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called.
func (t *CancelToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// sleepMinutes sleeps for the given number of minutes in short increments,
// returning false as soon as the token is cancelled. Fractional minutes are
// honored.
func sleepMinutes(tok *CancelToken, minutes float64) bool {
	remaining := time.Duration(minutes * float64(time.Minute))
	for remaining > 0 {
		if tok.IsCancelled() {
			return false
		}
		step := sleepIncrement
		if remaining < step {
			step = remaining
		}
		time.Sleep(step)
		remaining -= step
	}
	return !tok.IsCancelled()
}
