package backoff

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done, whichever comes first.
// Returns ctx.Err() when the context ended the wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// SleepAttempt sleeps for the policy delay of the given attempt.
func SleepAttempt(ctx context.Context, p Policy, attempt int) error {
	return Sleep(ctx, p.Delay(attempt))
}
