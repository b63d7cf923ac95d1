package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	commonerrors "github.com/AlibekovAA/user-directory/backend/internal/common/errors"
)

var ErrTimeout = errors.New("operation timed out")

type RetryPolicy struct {
	Attempts int
	// Retryable reports whether a failed attempt may be retried.
	// Nil means every error except permanent ones.
	Retryable  func(error) bool
	newBackoff func() retry.Backoff
}

func FibonacciPolicy(attempts int, base time.Duration) RetryPolicy {
	base = positive(base)
	return RetryPolicy{
		Attempts:   attempts,
		newBackoff: func() retry.Backoff { return retry.NewFibonacci(base) },
	}
}

func ConstantPolicy(attempts int, delay time.Duration) RetryPolicy {
	delay = positive(delay)
	return RetryPolicy{
		Attempts:   attempts,
		newBackoff: func() retry.Backoff { return retry.NewConstant(delay) },
	}
}

func ExponentialPolicy(attempts int, base, maxDelay time.Duration) RetryPolicy {
	base = positive(base)
	return RetryPolicy{
		Attempts: attempts,
		newBackoff: func() retry.Backoff {
			return retry.WithCappedDuration(maxDelay, retry.NewExponential(base))
		},
	}
}

// go-retry backoffs panic on a non-positive base.
func positive(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so WithRetry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, commonerrors.ErrCircuitOpen)
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, the
// attempt budget is spent, or ctx is done. The last error is returned.
func WithRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 1 || policy.newBackoff == nil {
		return unwrapPermanent(fn(ctx))
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), policy.newBackoff())
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return err
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}
		return retry.RetryableError(err)
	})
	return unwrapPermanent(err)
}

func unwrapPermanent(err error) error {
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

// WithTimeout bounds fn by d. A non-positive d runs fn with ctx unchanged.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %w", ErrTimeout, d, err)
	}
	return err
}
