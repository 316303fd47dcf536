package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/controlplane/internal/apperr"
	"github.com/retailops/controlplane/internal/metrics"
)

func failingCall(ctx context.Context) error { return errors.New("boom") }
func okCall(ctx context.Context) error      { return nil }

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	opts := Options{FailureThreshold: 3, ResetTimeout: time.Hour, HalfOpenProbes: 2}
	b := New("t1", opts, metrics.NewRegistry())

	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), failingCall)
		assert.Error(t, err)
	}
	assert.Equal(t, StateOpen, b.State())

	// The very next call after crossing the threshold is rejected outright.
	err := b.Execute(context.Background(), okCall)
	assert.ErrorIs(t, err, apperr.ErrCircuitOpen)
}

func TestBreakerTransitionsToHalfOpenAfterResetTimeout(t *testing.T) {
	opts := Options{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenProbes: 1}
	b := New("t2", opts, metrics.NewRegistry())

	require.Error(t, b.Execute(context.Background(), failingCall))
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(12 * time.Millisecond)

	require.NoError(t, b.Execute(context.Background(), okCall))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	opts := Options{FailureThreshold: 1, ResetTimeout: 5 * time.Millisecond, HalfOpenProbes: 2}
	b := New("t3", opts, metrics.NewRegistry())

	require.Error(t, b.Execute(context.Background(), failingCall))
	time.Sleep(8 * time.Millisecond)

	// First call after the timeout runs in half-open; a failure there
	// reopens the breaker rather than requiring a second probe.
	require.Error(t, b.Execute(context.Background(), failingCall))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerClosedSuccessResetsFailureCount(t *testing.T) {
	opts := Options{FailureThreshold: 3, ResetTimeout: time.Hour, HalfOpenProbes: 1}
	b := New("t4", opts, metrics.NewRegistry())

	require.Error(t, b.Execute(context.Background(), failingCall))
	require.Error(t, b.Execute(context.Background(), failingCall))
	require.NoError(t, b.Execute(context.Background(), okCall))
	// Two more failures should not be enough to open since the streak reset.
	require.Error(t, b.Execute(context.Background(), failingCall))
	require.Error(t, b.Execute(context.Background(), failingCall))
	assert.Equal(t, StateClosed, b.State())
}
