package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy is an exponential backoff shared by connection and navigation
// retries: base delay, multiplicative growth, capped maximum, optional
// jitter, bounded attempts.
type Policy struct {
	Base        time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
	Jitter      time.Duration
}

// Default mirrors the reconnect cadence of the original console: 1s base,
// doubling, capped at 60s, 12 attempts.
func Default() Policy {
	return Policy{
		Base:        time.Second,
		Multiplier:  2,
		Max:         60 * time.Second,
		MaxAttempts: 12,
		Jitter:      500 * time.Millisecond,
	}
}

// Delay returns the backoff for the given zero-based attempt, jittered.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Base
	if d <= 0 {
		d = time.Second
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if p.Max > 0 && d >= p.Max {
			d = p.Max
			break
		}
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// Exhausted reports whether the attempt budget is spent. MaxAttempts <= 0
// means unbounded.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Wait sleeps for the attempt's delay, returning early with the context
// error on cancellation.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
