package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"gamenight/internal/cloud"
)

// Policy controls how many times an operation is attempted and how the
// delays between attempts grow. A value object passed per call site.
type Policy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// Observer is notified before each sleep with the failed attempt number
// (1-based), the error that caused the retry, and the computed delay.
type Observer func(attempt int, err error, delay time.Duration)

// Retryer runs operations under a retry policy. The zero value is not
// usable; construct with New.
type Retryer struct {
	policy   Policy
	observer Observer
	rnd      *rand.Rand
	sleep    func(ctx context.Context, d time.Duration) error
	log      *zerolog.Logger
}

// Option customizes a Retryer.
type Option func(*Retryer)

// WithObserver installs a retry observer callback.
func WithObserver(obs Observer) Option {
	return func(r *Retryer) { r.observer = obs }
}

// WithRand fixes the jitter source, for reproducible tests.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Retryer) { r.rnd = rnd }
}

// WithSleeper replaces the real sleep, for tests with a fake clock.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Retryer) { r.sleep = sleep }
}

// New builds a Retryer for the given policy. MaxAttempts below 1 is
// treated as 1.
func New(policy Policy, logger *zerolog.Logger, opts ...Option) *Retryer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r := &Retryer{
		policy: policy,
		sleep:  sleepCtx,
		log:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs op up to MaxAttempts times, retrying only errors classified as
// retryable. The original error is returned unchanged on a fatal failure
// or after exhaustion so callers can branch on its code. Only idempotent
// operations may go through Do; use DoOnce for anything that mutates.
//
// Cancellation is cooperative: once ctx is done, no further attempt,
// observer call, or sleep wake-up has observable effect.
func (r *Retryer) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !cloud.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == r.policy.MaxAttempts-1 {
			break
		}

		delay := Delay(attempt, r.policy.BaseDelay, r.policy.MaxDelay, r.policy.JitterFactor, r.rnd)
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.observer != nil {
			r.observer(attempt+1, lastErr, delay)
		}
		if r.log != nil {
			r.log.Debug().
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Err(lastErr).
				Msg("retrying after transient failure")
		}
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// DoOnce runs op exactly once, regardless of how its failure classifies.
// Non-idempotent operations (slot claims, preference submission) go
// through here so an automatic retry can never duplicate an action; the
// caller may retry manually with fresh user intent.
func (r *Retryer) DoOnce(ctx context.Context, op func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return op(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
