package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/platform/logger"
)

func testScheduler(t *testing.T) *Scheduler {
	log, err := logger.New("development")
	require.NoError(t, err)
	return New(metrics.NewRegistry(), log)
}

func TestRegisterRunsOnIntervalTicker(t *testing.T) {
	sched := testScheduler(t)
	var runs atomic.Int32
	sched.Register(JobSpec{
		Name:     "interval_job",
		Interval: 10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	defer func() {
		cancel()
		sched.Stop()
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRegisterWithScheduleUsesCronNotInterval(t *testing.T) {
	sched := testScheduler(t)
	var runs atomic.Int32

	// Every minute, on the minute — the point of this test is only that
	// Schedule.Next is consulted instead of the zero-value Interval, not
	// that a specific cadence elapses within the test window.
	everyMinute, err := NewCronExpression("* * * * *")
	require.NoError(t, err)

	sched.Register(JobSpec{
		Name:     "cron_job",
		Schedule: everyMinute,
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()
	sched.Stop()

	assert.Equal(t, int32(0), runs.Load())
	stats := sched.Stats()
	_, registered := stats["cron_job"]
	assert.True(t, registered)
}

func TestNewCronExpressionRejectsMalformedExpression(t *testing.T) {
	_, err := NewCronExpression("not a cron expression")
	assert.Error(t, err)
}

func TestStatsTracksRunCountAndLastError(t *testing.T) {
	sched := testScheduler(t)
	attempt := 0
	sched.Register(JobSpec{
		Name:       "flaky",
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
		Fn: func(ctx context.Context) error {
			attempt++
			if attempt == 1 {
				return assert.AnError
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	defer func() {
		cancel()
		sched.Stop()
	}()

	// RunOnStart waits a random stagger of up to 10s before the first run.
	require.Eventually(t, func() bool {
		return sched.Stats()["flaky"].RunCount >= 2
	}, 15*time.Second, 5*time.Millisecond)

	stats := sched.Stats()["flaky"]
	assert.Empty(t, stats.LastError)
}
