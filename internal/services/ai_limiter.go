package services

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrTooManyAICalls is returned when a user asks for AI output faster than
// the per-user spacing allows.
var ErrTooManyAICalls = errors.New("please wait a moment before asking again")

// aiCallLimiter spaces AI calls per user. Calls beyond the allowance fail
// fast rather than queueing, the client is expected to retry.
type aiCallLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	every    time.Duration
}

func newAICallLimiter(every time.Duration) *aiCallLimiter {
	return &aiCallLimiter{every: every}
}

// Allow consumes one slot for uid, returning ErrTooManyAICalls when the
// previous call was under the minimum spacing ago.
func (l *aiCallLimiter) Allow(uid string) error {
	lim, _ := l.limiters.LoadOrStore(uid, rate.NewLimiter(rate.Every(l.every), 1))
	if !lim.(*rate.Limiter).Allow() {
		return ErrTooManyAICalls
	}
	return nil
}
