package broker

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
)

// RetryPolicy bounds how often an operation is attempted and how long to
// wait between attempts. A Multiplier of 0 or 1 gives a fixed delay.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// FixedRetry returns a policy with a constant delay between attempts.
func FixedRetry(attempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Delay: delay}
}

// connectPolicy builds the policy for initial connection attempts.
func connectPolicy(cfg config.BrokerConfig) RetryPolicy {
	return FixedRetry(cfg.Retry.MaxAttempts, cfg.Retry.Delay)
}

// recoveryPolicy builds the policy for reconnecting after a lost stream.
func recoveryPolicy(cfg config.BrokerConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.Recovery.MaxAttempts,
		Delay:       cfg.Recovery.Delay,
		Multiplier:  cfg.Recovery.Multiplier,
		MaxDelay:    cfg.Recovery.MaxDelay,
	}
}

// Do runs op until it succeeds, the attempts are used up, or ctx is done.
//
// It returns the number of attempts made and the last error. A cancelled
// context returns ctx.Err() without further attempts.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.Delay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
		delay = p.next(delay)
	}

	return attempts, lastErr
}

// next returns the delay that follows d.
func (p RetryPolicy) next(d time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return d
	}
	next := time.Duration(float64(d) * p.Multiplier)
	if p.MaxDelay > 0 && next > p.MaxDelay {
		return p.MaxDelay
	}
	return next
}
