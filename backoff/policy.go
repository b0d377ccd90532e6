package backoff

import (
	"context"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
)

// Policy is the explicit retry policy attached to an external-call site:
// a bounded attempt budget, a delay strategy, and an error classifier.
// Only errors the classifier accepts are retried; everything else fails
// immediately.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Strategy computes the delay between attempts.
	Strategy Strategy
	// Retryable decides whether an error is worth retrying.
	// Nil means "transient errors only".
	Retryable func(error) bool
}

// DefaultPolicy retries transient errors up to 3 attempts with full-jitter
// exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Strategy:    DefaultStrategy(),
		Retryable:   ragonometrics.IsTransient,
	}
}

// Do runs op, retrying per the policy. The last error is returned once the
// attempt budget is exhausted or a non-retryable error occurs. Sleeps are
// interruptible by context cancellation.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = ragonometrics.IsTransient
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			return err
		}

		var delay time.Duration
		if p.Strategy != nil {
			delay = p.Strategy.Delay(attempt)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
