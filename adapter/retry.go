package adapter

import (
	"context"
	"fmt"
	"time"
)

// BaseBackoff is the delay before the first retry. Each later retry doubles it.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry number n (1-based).
func Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * BaseBackoff
}

// Retry calls fn once plus up to retries more times with exponential backoff
// between calls. It stops early when fn succeeds, when permanent reports the
// error as non-retriable, or when ctx is done. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, fn func(context.Context) error, permanent func(error) bool) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
