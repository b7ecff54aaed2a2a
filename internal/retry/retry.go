// Package retry is a bounded, fixed-delay retry primitive. It knows nothing
// about what is being retried; callers decide that in the operation they pass.
package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = time.Second
)

// Policy bounds a retry loop. MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy is three attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

// Normalize fills zero-value fields with defaults. A negative delay becomes zero.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
	sleep  Sleeper
}

type Option func(*Retrier)

// WithSleeper replaces the delay implementation (tests use a recorder).
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

func New(p Policy, opts ...Option) *Retrier {
	r := &Retrier{policy: p.Normalize(), sleep: SleepContext}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the normalized policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do calls op until it returns nil or the attempts are used up. The delay is
// applied only between attempts, never after the last one. It returns the
// number of attempts made and, on failure, the last error. A context
// cancelled during a delay stops the loop early.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.policy.Delay); err != nil {
				return attempt - 1, fmt.Errorf("retry interrupted after %d attempts: %w (last error: %v)", attempt-1, err, lastErr)
			}
		}
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
	}
	return r.policy.MaxAttempts, lastErr
}
