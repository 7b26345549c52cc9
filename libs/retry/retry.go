// Package retry runs an operation with exponential backoff, retrying only
// errors the caller classifies as transient.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// uncapped stands in for "no MaxDelay"; backoff needs a finite MaxInterval.
const uncapped = 24 * time.Hour

type Policy struct {
	Base        time.Duration
	Factor      float64
	MaxAttempts int
	// MaxDelay caps a single wait; zero means uncapped.
	MaxDelay time.Duration

	// Sleep replaces the timer wait, mainly for tests. It should return
	// ctx.Err() when ctx ends first.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default is 1s base, factor 2, 3 attempts (waits of 1s then 2s).
func Default() Policy {
	return Policy{Base: time.Second, Factor: 2, MaxAttempts: 3}
}

func (p Policy) withDefaults() Policy {
	if p.Base <= 0 {
		p.Base = time.Second
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	return p
}

func (p Policy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.Multiplier = p.Factor
	b.RandomizationFactor = 0
	b.MaxInterval = uncapped
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.Reset()
	return b
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	b := p.withDefaults().exponential()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, attempts run
// out, or ctx is done. Errors from fn are returned unchanged; when ctx ends
// between attempts the context error is returned wrapping the last failure.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T
	if retryable == nil {
		retryable = func(error) bool { return false }
	}

	var (
		attempt int
		lastErr error
	)
	op := func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !retryable(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	opts := []backoff.RetryOption{
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.Sleep != nil {
		opts = append(opts, backoff.WithBackOff(&injectedWait{
			next:    p.exponential(),
			ctx:     ctx,
			sleep:   p.Sleep,
			onRetry: p.OnRetry,
			attempt: &attempt,
			lastErr: &lastErr,
		}))
	} else {
		opts = append(opts, backoff.WithBackOff(p.exponential()))
		if p.OnRetry != nil {
			opts = append(opts, backoff.WithNotify(func(err error, d time.Duration) {
				p.OnRetry(attempt, d, err)
			}))
		}
	}

	v, err := backoff.Retry(ctx, op, opts...)
	if err == nil {
		return v, nil
	}
	if lastErr == nil {
		return zero, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && retryable(lastErr) && !errors.Is(lastErr, ctxErr) {
		return zero, fmt.Errorf("%w: %w", ctxErr, lastErr)
	}
	return zero, lastErr
}

// injectedWait hands every wait to Policy.Sleep and lets backoff continue
// immediately afterwards.
type injectedWait struct {
	next    backoff.BackOff
	ctx     context.Context
	sleep   func(context.Context, time.Duration) error
	onRetry func(int, time.Duration, error)
	attempt *int
	lastErr *error
}

func (w *injectedWait) Reset() { w.next.Reset() }

func (w *injectedWait) NextBackOff() time.Duration {
	d := w.next.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if w.onRetry != nil {
		w.onRetry(*w.attempt, d, *w.lastErr)
	}
	if err := w.sleep(w.ctx, d); err != nil {
		return backoff.Stop
	}
	return 0
}
