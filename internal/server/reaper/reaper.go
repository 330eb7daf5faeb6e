// Package reaper periodically deletes expired user tokens so that storage
// does not grow without bound. Validation already ignores expired rows; the
// reaper only reclaims space.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/usertokens/internal/logging"
	"github.com/dmitrijs2005/usertokens/internal/timex"
)

// unlockTimeout bounds the lock release after a failed sweep, even when the
// sweep context is already cancelled.
const unlockTimeout = 5 * time.Second

// Purger deletes tokens that expired at or before asOf.
type Purger interface {
	PurgeExpired(ctx context.Context, asOf time.Time) (int64, error)
}

// Locker coordinates sweeps between replicas. TryLock reports ok=false when
// another replica holds the lock; unlock is only valid when ok is true.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, ok bool, err error)
}

// NopLocker always grants the lock. Used for single instance deployments.
type NopLocker struct{}

func (NopLocker) TryLock(context.Context) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

type Reaper struct {
	purger   Purger
	locker   Locker
	interval time.Duration
	clock    timex.Clock
	logger   logging.Logger
}

type Option func(*Reaper)

func WithLocker(l Locker) Option {
	return func(r *Reaper) {
		if l != nil {
			r.locker = l
		}
	}
}

func WithClock(c timex.Clock) Option {
	return func(r *Reaper) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(r *Reaper) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a reaper sweeping every interval. A non-positive interval
// disables the loop; Sweep can still be called directly.
func New(p Purger, interval time.Duration, opts ...Option) *Reaper {
	r := &Reaper{
		purger:   p,
		locker:   NopLocker{},
		interval: interval,
		clock:    timex.UTCNow,
		logger:   logging.Nop{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Sweep runs one purge if this replica gets the lock. It returns the number
// of deleted tokens, zero when the lock is held elsewhere.
//
// After a successful purge the lock is left to expire on its own, so with a
// lock ttl equal to the interval at most one replica sweeps per interval.
// A failed purge releases the lock right away to let another replica retry.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	unlock, ok, err := r.locker.TryLock(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire reaper lock: %w", err)
	}
	if !ok {
		r.logger.Debug(ctx, "reaper lock held elsewhere, skipping sweep")
		return 0, nil
	}

	n, err := r.purger.PurgeExpired(ctx, r.clock())
	if err != nil {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()
		if uerr := unlock(uctx); uerr != nil {
			r.logger.Warn(ctx, "reaper unlock failed", "error", uerr)
		}
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return n, nil
}

// Run sweeps once right away and then on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info(ctx, "reaper disabled")
		return
	}

	r.logger.Info(ctx, "reaper started", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.sweepAndLog(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "reaper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Reaper) sweepAndLog(ctx context.Context) {
	n, err := r.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error(ctx, "reaper sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		r.logger.Info(ctx, "reaper sweep done", "deleted", n)
	}
}
