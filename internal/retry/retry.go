// Package retry wraps calls to Plex and Trakt with bounded exponential backoff.
//
// [Policy.ShouldRetry] is a pure decision function: given the attempt index it returns whether to
// try again and how long to wait. [Retrier.Do] is the loop that consumes it. The policy does not
// classify errors; every failure is retried until attempts run out.
package retry

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 60 * time.Second
)

// Policy bounds exponential backoff: delay = min(BaseDelay * 2^attempt, MaxDelay).
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns three retries starting at one second, capped at sixty.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

// ShouldRetry decides whether the failure of attempt (zero-based) is retried and after what delay.
// err is accepted for the call shape only.
func (p Policy) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt < 0 || attempt >= p.MaxRetries {
		return false, 0
	}
	return true, p.Delay(attempt)
}

// Delay is the backoff before retrying after attempt.
func (p Policy) Delay(attempt int) time.Duration {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	delay := p.BaseDelay
	for range attempt {
		if delay >= maxDelay {
			break
		}
		delay *= 2
	}
	return min(delay, maxDelay)
}

// Retrier runs operations under a [Policy].
type Retrier struct {
	policy Policy
	logger *log.Logger
	sleep  func(context.Context, time.Duration) error
}

// New creates a [Retrier]. A nil logger discards retry logs.
func New(policy Policy, logger *log.Logger) *Retrier {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Retrier{policy: policy, logger: logger, sleep: sleepWithContext}
}

// Policy returns the retrier's policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do calls fn until it succeeds, the policy gives up, or ctx is done. The last error is returned.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		retry, delay := r.policy.ShouldRetry(attempt, err)
		if !retry {
			if attempt > 0 {
				r.logger.Warn("giving up", "op", op, "attempts", attempt+1, "error", err)
			}
			return err
		}

		r.logger.Debug("retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
		if serr := r.sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

// Value is [Retrier.Do] for operations that return a result.
func Value[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
