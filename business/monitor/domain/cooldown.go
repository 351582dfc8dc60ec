package domain

import (
	"math"
	"sync/atomic"
	"time"
)

const noAlert = math.MinInt64

// CooldownGate rate-limits alerts for one task. The last alert time is kept
// in unix millis and updated atomically.
type CooldownGate struct {
	cooldownMillis int64
	last           atomic.Int64
}

// NewCooldownGate creates a gate. last seeds the previous alert time; nil means none.
func NewCooldownGate(cooldownSeconds int64, last *int64) *CooldownGate {
	g := &CooldownGate{cooldownMillis: cooldownSeconds * 1000}
	g.last.Store(noAlert)
	if last != nil {
		g.last.Store(*last)
	}
	return g
}

// Acquire reports whether an alert may fire at now and records it if so.
// An alert fires when none has fired yet or strictly more than the cooldown
// has elapsed. Otherwise the remaining cooldown is returned.
func (g *CooldownGate) Acquire(now time.Time) (bool, time.Duration) {
	nowMillis := now.UnixMilli()
	for {
		last := g.last.Load()
		if last != noAlert {
			elapsed := nowMillis - last
			if elapsed <= g.cooldownMillis {
				return false, time.Duration(g.cooldownMillis-elapsed) * time.Millisecond
			}
		}
		if g.last.CompareAndSwap(last, nowMillis) {
			return true, 0
		}
	}
}

// LastAlert returns the last alert time in unix millis.
func (g *CooldownGate) LastAlert() (int64, bool) {
	last := g.last.Load()
	return last, last != noAlert
}
