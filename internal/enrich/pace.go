package enrich

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spreads fetches across three scopes: one budget for the whole
// process, one per target host, one per requesting user.
type Pacer struct {
	global   *rate.Limiter
	byHost   sync.Map // host -> *rate.Limiter
	byUser   sync.Map // uid -> *rate.Limiter
	userRate rate.Limit
}

// NewPacer builds a pacer with the given process-wide and per-user request
// rates, in requests per second.
func NewPacer(globalPerSec, userPerSec float64) *Pacer {
	return &Pacer{
		global:   rate.NewLimiter(rate.Limit(globalPerSec), burstFor(globalPerSec)),
		userRate: rate.Limit(userPerSec),
	}
}

// Wait blocks until all three scopes have room. pause is the spacing the
// target host asked for, normally its robots.txt crawl-delay. An empty
// uid (background sweeps) skips the user tier.
func (p *Pacer) Wait(ctx context.Context, uid, host string, pause time.Duration) error {
	if err := p.global.Wait(ctx); err != nil {
		return err
	}
	if err := p.hostLimiter(host, pause).Wait(ctx); err != nil {
		return err
	}
	if uid == "" {
		return nil
	}
	return p.userLimiter(uid).Wait(ctx)
}

// hostLimiter derives a per-host rate from the requested pause, clamped to
// [0.2, 5] requests per second. The first caller's pause wins for the
// lifetime of the entry.
func (p *Pacer) hostLimiter(host string, pause time.Duration) *rate.Limiter {
	if l, ok := p.byHost.Load(host); ok {
		return l.(*rate.Limiter)
	}

	perSec := 2.0
	if pause > 0 {
		perSec = 1.0 / pause.Seconds()
	}
	if perSec > 5.0 {
		perSec = 5.0
	}
	if perSec < 0.2 {
		perSec = 0.2
	}

	l, _ := p.byHost.LoadOrStore(host, rate.NewLimiter(rate.Limit(perSec), 1))
	return l.(*rate.Limiter)
}

func (p *Pacer) userLimiter(uid string) *rate.Limiter {
	if l, ok := p.byUser.Load(uid); ok {
		return l.(*rate.Limiter)
	}
	l, _ := p.byUser.LoadOrStore(uid, rate.NewLimiter(p.userRate, burstFor(float64(p.userRate))))
	return l.(*rate.Limiter)
}

func burstFor(perSec float64) int {
	b := int(perSec * 2)
	if b < 1 {
		b = 1
	}
	return b
}
