// Package ctxutil propagates request-scoped identifiers (trace id, request
// id, authenticated subject) through context.Context down to the engines
// and repositories that need them for logging and audit attribution.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
	UserID    uuid.UUID
	ClientIP  string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	td, _ := ctx.Value(traceDataKey{}).(*TraceData)
	return td
}

// RequestID returns the request id carried on ctx, or "" if none was attached.
func RequestID(ctx context.Context) string {
	if td := GetTraceData(ctx); td != nil {
		return td.RequestID
	}
	return ""
}

// UserID returns the authenticated subject carried on ctx, or uuid.Nil.
func UserID(ctx context.Context) uuid.UUID {
	if td := GetTraceData(ctx); td != nil {
		return td.UserID
	}
	return uuid.Nil
}
