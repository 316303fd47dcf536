// Package breaker implements the three-state circuit breaker every
// component that touches the database or network wraps its calls with.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/retailops/controlplane/internal/apperr"
	"github.com/retailops/controlplane/internal/metrics"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) gaugeValue() float64 { return float64(s) }

type Options struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenProbes   int
}

func DefaultOptions() Options {
	return Options{FailureThreshold: 5, ResetTimeout: 30 * time.Second, HalfOpenProbes: 2}
}

// Breaker is safe for concurrent use; a single mutex guards the small state
// machine, which is cheap at this scale (global locks acceptable per the
// concurrency model).
type Breaker struct {
	name string
	opts Options
	reg  *metrics.Registry

	mu          sync.Mutex
	state       State
	failures    int
	halfOpenOK  int
	lastChange  time.Time
}

func New(name string, opts Options, reg *metrics.Registry) *Breaker {
	b := &Breaker{name: name, opts: opts, reg: reg, lastChange: time.Now()}
	b.emitState()
	return b
}

// Execute runs fn if the breaker currently allows it, else returns
// apperr.ErrCircuitOpen without calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow() {
		return apperr.ErrCircuitOpen
	}
	err := fn(ctx)
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastChange) > b.opts.ResetTimeout {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return true
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		b.countFailure()
		if b.failures >= b.opts.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		if !success {
			b.countFailure()
			b.transition(StateOpen)
			return
		}
		b.halfOpenOK++
		if b.halfOpenOK >= b.opts.HalfOpenProbes {
			b.transition(StateClosed)
		}
	case StateOpen:
		// Calls here only happen if allow() raced a reset; treat like half-open.
		if !success {
			b.countFailure()
		}
	}
}

func (b *Breaker) countFailure() {
	if b.reg != nil {
		b.reg.Increment("circuit_breaker." + b.name + ".failures_total")
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	b.state = to
	b.lastChange = time.Now()
	b.failures = 0
	b.halfOpenOK = 0
	b.emitState()
}

func (b *Breaker) emitState() {
	if b.reg != nil {
		b.reg.Set("circuit_breaker."+b.name+".state", b.state.gaugeValue())
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
