// Package shutdown provides the signal-driven cancellation context the
// scheduler and HTTP server both drain against.
package shutdown

import (
	"context"
	"os/signal"
	"syscall"
)

func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
