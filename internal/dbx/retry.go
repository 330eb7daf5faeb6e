package dbx

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a transient storage failure is retried.
type RetryPolicy struct {
	// Retries is the number of additional attempts after the first one.
	Retries uint64
	// BaseDelay is the first backoff interval; it doubles on every retry.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff interval. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultRetryPolicy is used when a service is built without an explicit policy.
var DefaultRetryPolicy = RetryPolicy{Retries: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(p.Retries, b)
}

// Retry runs fn, repeating it while it fails with a transient error (see
// IsTransient) and the policy allows. Non-transient errors are returned as
// is. A transient error that survives every attempt is wrapped in
// common.ErrStorageUnavailable so callers can tell it from a normal negative
// outcome.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil && IsTransient(err) {
		return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}
	return err
}
