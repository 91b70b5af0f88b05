package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RunWithDeadline runs fn under a context that expires after limit. The
// callees here honour context cancellation (Redis SCAN loops, database/sql
// queries), so a synchronous call returns promptly once the deadline
// passes; no watchdog goroutine is needed.
func RunWithDeadline(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	dctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	if err := fn(dctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: exceeded %v: %w", op, limit, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
