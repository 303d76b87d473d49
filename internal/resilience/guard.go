package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Guard bounds every advisor call with a per-attempt deadline, a
// constant-delay retry for transient failures, and the shared circuit
// breaker. Callers treat any returned error as "no advice" and fall
// back to rule-based behavior.
type Guard struct {
	breaker    *Breaker
	timeout    time.Duration
	retryDelay time.Duration
	maxRetries uint64
	log        *slog.Logger
}

// NewGuard wraps breaker with the given per-attempt timeout. Each call
// is retried once after retryDelay before it counts as a breaker
// failure.
func NewGuard(breaker *Breaker, timeout, retryDelay time.Duration, log *slog.Logger) *Guard {
	return &Guard{
		breaker:    breaker,
		timeout:    timeout,
		retryDelay: retryDelay,
		maxRetries: 1,
		log:        log,
	}
}

// Available reports whether the guard would admit a call right now.
func (g *Guard) Available() bool {
	return g.breaker.Available()
}

// Do runs fn under the guard. op names the advisor operation for logs.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := g.breaker.Execute(func() error {
		backoff := retry.WithMaxRetries(g.maxRetries, retry.NewConstant(g.retryDelay))
		return retry.Do(ctx, backoff, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			if err := fn(attemptCtx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				return retry.RetryableError(err)
			}
			return nil
		})
	})
	if err != nil {
		g.log.Warn("advisor call failed", "op", op, "error", err)
	}
	return err
}
