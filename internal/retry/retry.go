// Package retry runs RPC calls with exponential backoff.
package retry

import (
	"context"
	"time"
)

// DefaultBaseDelay is used when a policy has no positive base delay.
const DefaultBaseDelay = 100 * time.Millisecond

// Policy bounds the attempts of Do. MaxRetries counts retries after the first attempt.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Do calls fn until it succeeds, the retries are exhausted or ctx is done. The delay doubles after
// every failed attempt.
func Do(ctx context.Context, policy Policy, fn func(context.Context) error) error {
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = DefaultBaseDelay
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
