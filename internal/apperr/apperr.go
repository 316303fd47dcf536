// Package apperr classifies the error kinds the control plane reasons about
// explicitly (see the error handling design): transient store conflicts that
// are retried, transport failures retried through a circuit breaker,
// validation failures that never retry, and the distinguished circuit-open
// rejection. Everything else is an ordinary error.
package apperr

import (
	"errors"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidationFailed = errors.New("validation rejected")
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrIdempotencyBusy   = errors.New("idempotency key busy")
	ErrSafeModeActive   = errors.New("service in safe mode")
	ErrBlocked          = errors.New("blocked")
)

// Kind classifies an error for retry policy selection.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransientStoreConflict
	KindTransportFailure
	KindCircuitOpen
	KindValidation
)

func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrCircuitOpen) {
		return KindCircuitOpen
	}
	if errors.Is(err, ErrValidationFailed) {
		return KindValidation
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "deadlock", "serialize", "could not serialize", "lock timeout", "40p01", "40001"):
		return KindTransientStoreConflict
	case containsAny(msg, "connection refused", "connection reset", "i/o timeout", "broken pipe", "eof", "timeout"):
		return KindTransportFailure
	}
	return KindUnknown
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
