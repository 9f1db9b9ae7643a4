package syncer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle paces upstream requests. Wait blocks until the next request may go out.
type Throttle interface {
	Wait(ctx context.Context) error
}

// RateThrottle allows one request per interval with no burst, so the first
// request leaves immediately and every later one waits out the delay.
type RateThrottle struct {
	limiter *rate.Limiter
}

func NewRateThrottle(delay time.Duration) Throttle {
	if delay <= 0 {
		return NoThrottle{}
	}
	return &RateThrottle{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

func (t *RateThrottle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// NoThrottle never waits.
type NoThrottle struct{}

func (NoThrottle) Wait(context.Context) error { return nil }
