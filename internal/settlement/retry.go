package settlement

import (
	"context"
	"time"
)

// withRetry runs fn up to maxAttempts times, sleeping with a doubling delay
// capped at maxDelay between attempts. Only errors accepted by retryable are
// retried; any other error, or the last attempt's error, is returned as is.
func withRetry(
	ctx context.Context,
	maxAttempts int,
	baseDelay time.Duration,
	maxDelay time.Duration,
	retryable func(error) bool,
	fn func(ctx context.Context, attempt int) error,
) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 10 * time.Millisecond
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}

	delay := baseDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= maxAttempts {
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
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
