// Package retry runs ledger calls with exponential backoff.
//
// Failures are classified with package fault. Only recoverable categories
// (NETWORK, TIMEOUT, RATE_LIMIT) are retried; everything else is returned on
// the first failure. The wait before retry n (0-indexed) is BaseDelay * 2^n.
package retry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/devblac/batchtrace/internal/fault"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// OnRetryFunc is called before each wait. attempt is 0-indexed: the first
// retry reports attempt 0 and delay BaseDelay.
type OnRetryFunc func(attempt int, err *fault.Error, delay time.Duration)

// Policy configures Do.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay is the wait before the first retry; it doubles afterwards.
	BaseDelay time.Duration `yaml:"base_delay"`

	// AttemptTimeout bounds each attempt when positive. Zero means no
	// per-attempt deadline beyond what the caller's context carries.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	OnRetry OnRetryFunc     `yaml:"-"`
	Clock   clockwork.Clock `yaml:"-"`
}

// DefaultPolicy returns three retries starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

// Delay returns the wait before the given 0-indexed retry.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return base << uint(attempt)
}

// Do calls op until it succeeds, fails with an unrecoverable error, or
// MaxRetries retries have been spent. op is invoked at most MaxRetries+1
// times. Every returned error is a *fault.Error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		result, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return result, nil
		}

		classified := fault.Classify(err)
		if !fault.IsRecoverable(classified) || attempt >= maxRetries {
			return zero, classified
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, classified, delay)
		}

		select {
		case <-ctx.Done():
			return zero, fault.Classify(ctx.Err())
		case <-clock.After(delay):
		}
	}
}

// DoVoid is Do for operations without a result.
func DoVoid(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}
