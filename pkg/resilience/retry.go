package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// RetryConfig bounds a retried operation. Zero values take the defaults,
// which suit the one caller: a single-row Postgres insert that should give
// up within a few seconds rather than stall build bookkeeping.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Retry runs fn up to cfg.Attempts times. The delay doubles after each
// failed attempt, capped at MaxDelay, with up to 25% jitter added so
// callers hitting the same outage spread out. Context cancellation aborts
// the wait between attempts.
func Retry(ctx context.Context, op string, cfg RetryConfig, fn func() error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	logger := slog.Default().With("component", "retry", "op", op)

	delay := cfg.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			if attempt > 1 {
				logger.Info("recovered", "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.Attempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempt, err)
		}

		wait := delay + time.Duration(rand.Int63n(int64(delay)/4+1))
		logger.Warn("attempt failed",
			"attempt", attempt,
			"attempts", cfg.Attempts,
			"error", err,
			"backoff", wait,
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%s: aborted during backoff: %w", op, ctx.Err())
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
