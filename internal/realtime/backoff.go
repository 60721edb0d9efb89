package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetriesExhausted is returned by Wait when the policy gives up.
var ErrRetriesExhausted = errors.New("retries exhausted")

// DefaultBackoff is used for subscription and change-stream reconnects. It
// never stops on its own; callers stop retrying when their context ends.
func DefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Wait sleeps for the next delay of b or until ctx is done.
func Wait(ctx context.Context, b backoff.BackOff) error {
	d := backoff.WithContext(b, ctx).NextBackOff()
	if d == backoff.Stop {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrRetriesExhausted
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
