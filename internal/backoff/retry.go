package backoff

import (
	"context"
	"errors"
)

// ErrMaxAttemptsExhausted is returned when all retry attempts have been exhausted.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// Permanent marks err as not worth retrying. Retry stops immediately and
// returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Retry runs fn until it succeeds, returns a Permanent error, the context ends,
// or maxAttempts is reached. On exhaustion the last error is joined with
// ErrMaxAttemptsExhausted so both remain inspectable with errors.Is/As.
func Retry[T any](ctx context.Context, p Policy, maxAttempts int, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, errors.Join(err, lastErr)
			}
			return zero, err
		}

		value, err := fn(ctx, attempt)
		if err == nil {
			return value, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt < maxAttempts {
			if err := SleepAttempt(ctx, p, attempt); err != nil {
				return zero, errors.Join(err, lastErr)
			}
		}
	}

	return zero, errors.Join(ErrMaxAttemptsExhausted, lastErr)
}
