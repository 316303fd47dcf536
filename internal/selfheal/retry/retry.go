// Package retry implements the deadlock-aware store retry and the
// circuit-breaker-wrapped network retry used by every component that talks
// to the database or an external collaborator.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/retailops/controlplane/internal/apperr"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/selfheal/breaker"
)

const (
	deadlockMaxAttempts = 5
	deadlockBaseMs      = 50
	deadlockCapMs       = 2000
	deadlockJitterMs    = 50

	networkMaxAttempts = 4
	networkBaseMs      = 200
	networkCapMs       = 5000
)

// WithDeadlockRetry retries fn up to 5 times on transient store conflicts
// (deadlock/serialize-failure/lock-timeout) with exponential backoff plus
// jitter. Any other error propagates unchanged on the first attempt.
func WithDeadlockRetry(ctx context.Context, reg *metrics.Registry, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= deadlockMaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if apperr.Classify(lastErr) != apperr.KindTransientStoreConflict {
			return lastErr
		}
		if attempt == deadlockMaxAttempts {
			break
		}
		if reg != nil {
			reg.Increment("db.deadlock_retry.count")
		}
		if err := sleepBackoff(ctx, attempt, deadlockBaseMs, deadlockCapMs, deadlockJitterMs); err != nil {
			return err
		}
	}
	if reg != nil {
		reg.Increment("db.deadlock_retry.exhausted_total")
	}
	return lastErr
}

// WithNetworkRetry retries fn up to 4 times over a circuit breaker; an open
// breaker is non-retryable and surfaces immediately.
func WithNetworkRetry(ctx context.Context, reg *metrics.Registry, b *breaker.Breaker, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= networkMaxAttempts; attempt++ {
		lastErr = b.Execute(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, apperr.ErrCircuitOpen) {
			return lastErr
		}
		if apperr.Classify(lastErr) != apperr.KindTransportFailure {
			return lastErr
		}
		if attempt == networkMaxAttempts {
			break
		}
		if reg != nil {
			reg.Increment("network_retry.count")
		}
		if err := sleepBackoff(ctx, attempt, networkBaseMs, networkCapMs, 0); err != nil {
			return err
		}
	}
	if reg != nil {
		reg.Increment("network_retry.exhausted_total")
	}
	return lastErr
}

func sleepBackoff(ctx context.Context, attempt, baseMs, capMs, jitterMs int) error {
	backoff := baseMs * (1 << (attempt - 1))
	if backoff > capMs {
		backoff = capMs
	}
	delay := time.Duration(backoff) * time.Millisecond
	if jitterMs > 0 {
		delay += time.Duration(rand.Intn(jitterMs)) * time.Millisecond
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
