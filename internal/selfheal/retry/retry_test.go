package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/controlplane/internal/apperr"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/selfheal/breaker"
)

// TestWithDeadlockRetrySucceedsOnThirdAttempt is scenario 4 of the spec's
// concrete end-to-end scenarios: a fn that fails with a serialize-failure
// error twice then succeeds must return the success value with the
// deadlock-retry counter increased by exactly 2.
func TestWithDeadlockRetrySucceedsOnThirdAttempt(t *testing.T) {
	reg := metrics.NewRegistry()
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("could not serialize access due to concurrent update")
		}
		return nil
	}

	err := WithDeadlockRetry(context.Background(), reg, fn)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2.0, reg.CounterValue("db.deadlock_retry.count"))
	assert.Equal(t, 0.0, reg.CounterValue("db.deadlock_retry.exhausted_total"))
}

func TestWithDeadlockRetryExhaustsAfterFiveAttempts(t *testing.T) {
	reg := metrics.NewRegistry()
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return errors.New("deadlock detected")
	}

	err := WithDeadlockRetry(context.Background(), reg, fn)
	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, 1.0, reg.CounterValue("db.deadlock_retry.exhausted_total"))
}

func TestWithDeadlockRetryNonTransientErrorNeverRetries(t *testing.T) {
	reg := metrics.NewRegistry()
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return apperr.ErrValidationFailed
	}

	err := WithDeadlockRetry(context.Background(), reg, fn)
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
	assert.Equal(t, 1, attempts)
}

func TestWithNetworkRetryCircuitOpenNeverRetries(t *testing.T) {
	reg := metrics.NewRegistry()
	b := breaker.New("svc", breaker.Options{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenProbes: 1}, reg)

	// Trip the breaker first.
	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("connection refused") })
	require.Equal(t, breaker.StateOpen, b.State())

	attempts := 0
	err := WithNetworkRetry(context.Background(), reg, b, func(ctx context.Context) error {
		attempts++
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrCircuitOpen)
	assert.Equal(t, 0, attempts)
}

func TestWithNetworkRetrySucceedsAfterTransientFailures(t *testing.T) {
	reg := metrics.NewRegistry()
	b := breaker.New("svc2", breaker.Options{FailureThreshold: 100, ResetTimeout: time.Hour, HalfOpenProbes: 1}, reg)

	attempts := 0
	err := WithNetworkRetry(context.Background(), reg, b, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("i/o timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
