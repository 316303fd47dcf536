// Package idempotency implements distributed request deduplication with
// in-flight locking (the idempotency registry) and a short-TTL redis façade
// for duplicate-business-transaction detection.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retailops/controlplane/internal/apperr"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

const (
	DefaultTTL     = 24 * time.Hour
	waitStep       = 500 * time.Millisecond
	// MaxWait bounds the step-3 waiter: the spec flags the unbounded loop as
	// an open question and recommends an explicit cap instead of looping
	// until the TTL, so callers get a distinct busy error instead.
	MaxWait = 30 * time.Second
)

type Result struct {
	StatusCode int
	Body       []byte
	Cached     bool
}

type HandlerFunc func(ctx context.Context) (statusCode int, body []byte, err error)

type Registry struct {
	repo repos.IdempotencyRepo
	reg  *metrics.Registry
	log  *logger.Logger
	ttl  time.Duration
}

func NewRegistry(repo repos.IdempotencyRepo, reg *metrics.Registry, log *logger.Logger) *Registry {
	return &Registry{repo: repo, reg: reg, log: log.With("component", "IdempotencyRegistry"), ttl: DefaultTTL}
}

// Execute is idempotent: concurrent callers sharing the same key while the
// first invocation is in flight all observe exactly one call to fn.
func (r *Registry) Execute(ctx context.Context, key string, fn HandlerFunc) (Result, error) {
	deadline := time.Now().Add(MaxWait)
	for {
		rec, err := r.repo.GetLive(ctx, key)
		if err != nil {
			return Result{}, err
		}
		if rec != nil && !rec.Locked {
			return Result{StatusCode: rec.StatusCode, Body: rec.ResponseBody, Cached: true}, nil
		}
		if rec != nil && rec.Locked {
			if time.Now().After(deadline) {
				return Result{}, apperr.ErrIdempotencyBusy
			}
			if err := sleep(ctx, waitStep); err != nil {
				return Result{}, err
			}
			continue
		}

		inserted, err := r.repo.TryInsertLocked(ctx, key, r.ttl)
		if err != nil {
			return Result{}, err
		}
		if !inserted {
			continue // lost the insert race; restart the lookup.
		}

		status, body, runErr := fn(ctx)
		if runErr != nil {
			if delErr := r.repo.Delete(ctx, key); delErr != nil {
				r.log.Warn("idempotency cleanup delete failed", "key", key, "error", delErr)
			}
			return Result{}, runErr
		}
		if err := r.repo.Complete(ctx, key, status, body); err != nil {
			return Result{}, err
		}
		return Result{StatusCode: status, Body: body, Cached: false}, nil
	}
}

// GC deletes expired rows; scheduled hourly by default.
func (r *Registry) GC(ctx context.Context) (int64, error) {
	n, err := r.repo.DeleteExpired(ctx)
	if err == nil && r.reg != nil {
		r.reg.Increment("idempotency.gc.deleted_total", float64(n))
	}
	return n, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DuplicateDetector stores dup:<businessKey>:<ts> keys with a short TTL in
// redis; the presence of any matching prefix within the configured window
// signals a duplicate business action (e.g. a sale submitted twice).
type DuplicateDetector struct {
	client *redis.Client
	window time.Duration
	log    *logger.Logger
}

func NewDuplicateDetector(client *redis.Client, window time.Duration, log *logger.Logger) *DuplicateDetector {
	return &DuplicateDetector{client: client, window: window, log: log.With("component", "DuplicateDetector")}
}

// Seen marks businessKey as observed now and reports whether any earlier
// observation is still within the window.
func (d *DuplicateDetector) Seen(ctx context.Context, businessKey string) (duplicate bool, err error) {
	if d == nil || d.client == nil {
		return false, nil
	}
	prefix := "dup:" + businessKey + ":"
	keys, err := d.client.Keys(ctx, prefix+"*").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		d.log.Warn("duplicate detector scan failed", "error", err)
		return false, err
	}
	duplicate = len(keys) > 0

	key := prefix + time.Now().UTC().Format(time.RFC3339Nano)
	if err := d.client.Set(ctx, key, "1", d.window).Err(); err != nil {
		d.log.Warn("duplicate detector set failed", "error", err)
		return duplicate, err
	}
	return duplicate, nil
}
