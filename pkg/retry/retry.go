// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Policy tunes a retry loop.
type Policy struct {
	MaxAttempts  int           // total attempts including the first; <=0 means 1
	InitialDelay time.Duration // delay before the second attempt
	Multiplier   float64       // backoff multiplier; <=0 means 2
	MaxDelay     time.Duration // cap on a single delay; 0 means no cap

	// ShouldRetry gates further attempts. Nil retries every error.
	ShouldRetry func(error) bool
}

// DefaultPolicy matches the channel adapters' needs: three attempts,
// 500ms initial delay, doubling, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     5 * time.Second,
	}
}

// Do runs op until it succeeds, attempts exhaust, ShouldRetry declines, or
// ctx is cancelled. The clock is injectable so tests advance time instead of
// sleeping.
func Do(ctx context.Context, clock clockwork.Clock, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	delay := p.InitialDelay
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-clock.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			return err
		}
	}
	return err
}
