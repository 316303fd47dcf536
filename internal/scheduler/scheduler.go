// Package scheduler wraps robfig/cron/v3 with the job registry contract:
// {name, intervalMs, runOnStart, fn}, per-job run counters, and a random
// start-up stagger so runOnStart jobs don't all fire in the same instant.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/platform/logger"
)

const maxStartupStaggerMs = 10_000

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

// JobSpec describes a registered job. A job runs on a fixed Interval
// ticker unless Schedule is set, in which case it runs at the times a real
// cron(5) expression produces (see NewCronExpression) and Interval is
// ignored.
type JobSpec struct {
	Name       string
	Interval   time.Duration
	Schedule   cron.Schedule
	RunOnStart bool
	Fn         JobFunc
}

// JobStats is the per-job counter set exposed for diagnostics.
type JobStats struct {
	LastRun   time.Time
	RunCount  int64
	LastError string
}

// Scheduler drives every registered job on its own interval timer; jobs
// never run concurrently with themselves, but different jobs are never
// serialized against one another — each owns its own storage view.
type Scheduler struct {
	reg    *metrics.Registry
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	specs []JobSpec
	stats map[string]*JobStats

	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(reg *metrics.Registry, log *logger.Logger) *Scheduler {
	return &Scheduler{reg: reg, log: log.With("component", "Scheduler"), stats: map[string]*JobStats{}}
}

// Register adds a job; call before Start.
func (s *Scheduler) Register(spec JobSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	s.stats[spec.Name] = &JobStats{}
}

// Start launches every registered job's timer loop. runOnStart jobs fire
// once after a random [0, 10s) stagger before settling into their steady
// interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	specs := make([]JobSpec, len(s.specs))
	copy(specs, s.specs)
	s.mu.Unlock()

	for _, spec := range specs {
		spec := spec
		s.wg.Add(1)
		go s.runLoop(spec)
	}
}

func (s *Scheduler) runLoop(spec JobSpec) {
	defer s.wg.Done()

	if spec.RunOnStart {
		stagger := time.Duration(rand.Intn(maxStartupStaggerMs)) * time.Millisecond
		select {
		case <-time.After(stagger):
			s.invoke(spec)
		case <-s.ctx.Done():
			return
		}
	}

	if spec.Schedule != nil {
		s.runCronLoop(spec)
		return
	}

	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.invoke(spec)
		}
	}
}

// runCronLoop drives a Schedule-bearing job: it fires at each time the
// cron.Schedule produces rather than on a fixed interval, recomputing the
// next fire time from "now" after every run so a long-running invocation
// never causes a burst of catch-up runs.
func (s *Scheduler) runCronLoop(spec JobSpec) {
	for {
		next := spec.Schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.invoke(spec)
		}
	}
}

func (s *Scheduler) invoke(spec JobSpec) {
	start := time.Now()
	err := spec.Fn(s.ctx)
	dur := time.Since(start)

	s.mu.Lock()
	stat := s.stats[spec.Name]
	stat.LastRun = start
	stat.RunCount++
	if err != nil {
		stat.LastError = err.Error()
	} else {
		stat.LastError = ""
	}
	s.mu.Unlock()

	s.reg.Set("cron."+spec.Name+".last_run_ms", float64(dur.Milliseconds()))
	if err != nil {
		s.reg.Increment("cron." + spec.Name + ".error_total")
		s.log.Error("cron job failed", "job", spec.Name, "error", err, "durationMs", dur.Milliseconds())
		return
	}
	s.reg.Increment("cron." + spec.Name + ".success_total")
	s.log.Debug("cron job completed", "job", spec.Name, "durationMs", dur.Milliseconds())
}

// Stats returns a snapshot of every job's counters, keyed by name.
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobStats, len(s.stats))
	for name, st := range s.stats {
		out[name] = *st
	}
	return out
}

// Stop cancels every job loop and waits for them to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// NewCronExpression parses a standard five-field cron(5) expression into a
// Schedule for JobSpec.Schedule — for jobs pinned to a wall-clock time (e.g.
// "run at 02:00 daily") rather than a fixed interval since process start.
func NewCronExpression(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}
