// Package resilience holds the fault-tolerance helpers wrapped around the
// service's optional dependencies. The query cache guards its Redis round
// trips with a Breaker, the build-history insert retries with backoff, and
// post-build bookkeeping runs under RunWithDeadline so a slow dependency
// cannot wedge the job manager.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Breaker.Do while the breaker is rejecting
// calls. Callers treat it as "dependency unavailable", not as a failure of
// the guarded operation itself.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerConfig tunes when a Breaker trips and how long it stays tripped.
// Zero values take the defaults, which are sized for a Redis sidecar: a few
// consecutive errors trip the breaker and searches fall through to the
// index until the cool-down elapses.
type BreakerConfig struct {
	FailureLimit int
	Cooldown     time.Duration
}

// Breaker rejects calls to a dependency after FailureLimit consecutive
// failures. Once the cool-down has elapsed a single probe call is let
// through; a successful probe resets the breaker, a failed one restarts
// the cool-down.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a Breaker, filling config defaults for zero values.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "breaker", "name", name),
	}
}

// Do runs fn unless the breaker is open, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.cfg.FailureLimit && time.Since(b.openedAt) < b.cfg.Cooldown
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.cfg.FailureLimit {
		return nil
	}
	remaining := b.cfg.Cooldown - time.Since(b.openedAt)
	if remaining > 0 {
		return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, b.name, remaining.Round(time.Millisecond))
	}
	if b.probing {
		// One probe at a time; concurrent callers keep getting rejected
		// until the probe reports back.
		return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, b.name)
	}
	b.probing = true
	b.logger.Info("probing after cool-down", "cooldown", b.cfg.Cooldown)
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		if b.failures >= b.cfg.FailureLimit {
			b.logger.Info("breaker reset")
		}
		b.failures = 0
		b.probing = false
		return
	}
	b.failures++
	b.openedAt = time.Now()
	b.probing = false
	if b.failures == b.cfg.FailureLimit {
		b.logger.Warn("breaker tripped",
			"consecutive_failures", b.failures,
			"cooldown", b.cfg.Cooldown,
		)
	}
}
