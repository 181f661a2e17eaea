package publisher

import (
	"context"
	"errors"
	"time"
)

// withRateLimitRetry re-runs fn while it fails with a RateLimitError, up to the configured
// number of extra attempts. The wait honours Retry-After, capped at MaxRetryWait.
// Other errors are returned immediately.
func (b *base) withRateLimitRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rl *RateLimitError
		if !errors.As(err, &rl) || attempt >= b.opts.RateLimitRetries {
			return err
		}

		wait := rl.RetryAfter
		if wait <= 0 {
			wait = time.Second << attempt
		}
		if wait > b.opts.MaxRetryWait {
			wait = b.opts.MaxRetryWait
		}

		b.logger.Warn("rate limited, retrying",
			"platform", b.platform,
			"op", op,
			"attempt", attempt+1,
			"wait", wait.String(),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
