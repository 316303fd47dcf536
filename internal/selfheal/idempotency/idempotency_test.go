package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/controlplane/internal/apperr"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

// mockIdempotencyRepo is an in-memory stand-in for repos.IdempotencyRepo,
// faithful to the lock/insert/complete/delete contract in spec §4.2.
type mockIdempotencyRepo struct {
	mu   sync.Mutex
	rows map[string]*models.IdempotencyRecord
}

func newMockIdempotencyRepo() *mockIdempotencyRepo {
	return &mockIdempotencyRepo{rows: map[string]*models.IdempotencyRecord{}}
}

func (m *mockIdempotencyRepo) TryInsertLocked(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	now := time.Now()
	m.rows[key] = &models.IdempotencyRecord{ID: key, Locked: true, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	return true, nil
}

func (m *mockIdempotencyRepo) GetLive(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[key]
	if !ok || time.Now().After(rec.ExpiresAt) {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockIdempotencyRepo) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[key]
	if !ok {
		return errors.New("not found")
	}
	rec.Locked = false
	rec.StatusCode = statusCode
	rec.ResponseBody = body
	return nil
}

func (m *mockIdempotencyRepo) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, key)
	return nil
}

func (m *mockIdempotencyRepo) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for k, rec := range m.rows {
		if now.After(rec.ExpiresAt) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func testLogger(t *testing.T) *logger.Logger {
	log, err := logger.New("development")
	require.NoError(t, err)
	return log
}

// TestExecuteConcurrentCallersShareOneInvocation is spec §8 scenario 3:
// two concurrent Execute calls on the same key while fn is in flight must
// result in exactly one call to fn, with exactly one caller observing
// cached=false.
func TestExecuteConcurrentCallersShareOneInvocation(t *testing.T) {
	repo := newMockIdempotencyRepo()
	reg := metrics.NewRegistry()
	r := NewRegistry(repo, reg, testLogger(t))

	var calls atomic.Int32
	fn := func(ctx context.Context) (int, []byte, error) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		return 201, []byte(`{"id":"A"}`), nil
	}

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Execute(context.Background(), "K1", fn)
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	cachedCount := 0
	for _, res := range results {
		assert.Equal(t, `{"id":"A"}`, string(res.Body))
		if res.Cached {
			cachedCount++
		}
	}
	assert.Equal(t, 1, cachedCount)
}

func TestExecuteReturnsCachedOnSecondCallAfterCompletion(t *testing.T) {
	repo := newMockIdempotencyRepo()
	r := NewRegistry(repo, metrics.NewRegistry(), testLogger(t))

	fn := func(ctx context.Context) (int, []byte, error) { return 200, []byte("ok"), nil }

	first, err := r.Execute(context.Background(), "K2", fn)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := r.Execute(context.Background(), "K2", fn)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Body, second.Body)
}

func TestExecuteDeletesRowOnHandlerFailure(t *testing.T) {
	repo := newMockIdempotencyRepo()
	r := NewRegistry(repo, metrics.NewRegistry(), testLogger(t))

	boom := errors.New("boom")
	_, err := r.Execute(context.Background(), "K3", func(ctx context.Context) (int, []byte, error) {
		return 0, nil, boom
	})
	assert.ErrorIs(t, err, boom)

	rec, getErr := repo.GetLive(context.Background(), "K3")
	require.NoError(t, getErr)
	assert.Nil(t, rec, "a failed handler must free the key for retry")
}

func TestExecuteReturnsBusyPastMaxWait(t *testing.T) {
	repo := newMockIdempotencyRepo()
	r := NewRegistry(repo, metrics.NewRegistry(), testLogger(t))
	r.ttl = time.Hour

	// Pre-lock the key and never unlock it, simulating a stuck in-flight
	// invocation, then shrink MaxWait's effect by racing the deadline via
	// a tiny context timeout instead of waiting the full 30s in a test.
	_, err := repo.TryInsertLocked(context.Background(), "K4", time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Execute(ctx, "K4", func(ctx context.Context) (int, []byte, error) {
		return 200, nil, nil
	})
	assert.Error(t, err)
	// Either the context deadline fires first or ErrIdempotencyBusy would —
	// both are the correct "don't loop forever" outcomes the open question
	// asked for; assert it's one of the two, never a hang.
	if !errors.Is(err, context.DeadlineExceeded) {
		assert.ErrorIs(t, err, apperr.ErrIdempotencyBusy)
	}
}

func TestGCDeletesExpiredRows(t *testing.T) {
	repo := newMockIdempotencyRepo()
	r := NewRegistry(repo, metrics.NewRegistry(), testLogger(t))

	_, err := repo.TryInsertLocked(context.Background(), "stale", -time.Hour)
	require.NoError(t, err)

	n, err := r.GC(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
