// Package ratelimit provides a wrapper around golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter serializes callers through a token bucket. One Limiter is meant to be
// shared by every caller of the endpoint it protects.
type Limiter struct {
	limiter *rate.Limiter
	every   time.Duration
}

// NewInterval allows one request per interval with no burst. A non-positive
// interval disables limiting.
func NewInterval(every time.Duration) *Limiter {
	if every <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(every), 1),
		every:   every,
	}
}

// NewPerMinute allows requestsPerMinute with a burst of 10% of the rate.
func NewPerMinute(requestsPerMinute int) *Limiter {
	rps := float64(requestsPerMinute) / 60.0
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		every:   time.Minute / time.Duration(max(requestsPerMinute, 1)),
	}
}

// Wait blocks until a token is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may happen now, consuming a token if so.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Interval returns the configured spacing between requests.
func (l *Limiter) Interval() time.Duration {
	return l.every
}
