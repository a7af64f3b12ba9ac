package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/srgchrksv/docpodcaster/apperrors"
)

// Speech synthesis retry defaults.
const (
	DefaultAttempts  = 4
	DefaultBaseDelay = 350 * time.Millisecond
	DefaultMaxDelay  = 4 * time.Second
	DefaultMaxJitter = 250 * time.Millisecond
)

// RetryPolicy is an exponential backoff with additive jitter.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MaxJitter time.Duration

	sleep func(context.Context, time.Duration) error
}

// DefaultRetryPolicy returns the policy used for speech synthesis calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  DefaultAttempts,
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		MaxJitter: DefaultMaxJitter,
	}
}

// Delay is the wait before retry n (1-indexed):
// min(MaxDelay, BaseDelay*2^(n-1) + jitter) with jitter in [0, MaxJitter).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay << min(max(n-1, 0), 16)
	if p.MaxJitter > 0 {
		d += rand.N(p.MaxJitter)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// retry calls fn until it succeeds, returns a non-transient error, or the attempt
// budget runs out. The error of the last attempt is returned unchanged.
func retry[T any](ctx context.Context, p RetryPolicy, log *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var (
		zero T
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		var v T
		if v, err = fn(ctx); err == nil {
			return v, nil
		}
		if !retryable(err) || attempt == attempts {
			return zero, err
		}

		delay := p.Delay(attempt)
		log.Debug("retrying after transient error", "attempt", attempt, "max", attempts, "delay", delay, "error", err)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}
	return zero, err
}

// retryable reports whether err was classified as transient.
func retryable(err error) bool {
	var e *apperrors.Error
	return errors.As(err, &e) && e.Transient
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
