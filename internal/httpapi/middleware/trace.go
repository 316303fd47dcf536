// Package middleware implements the request pipeline: trace/request-id
// attachment, safe-mode gate, security gate, and latency/error accounting,
// in the order the spec pins down — outer to inner: safe-mode, security,
// accounting, handler.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retailops/controlplane/internal/platform/ctxutil"
)

const requestIDHeader = "X-Request-ID"

// Trace attaches a TraceData to the request context so every downstream
// component (logger, incident forensic capture, audit) can read the
// request id and client ip without threading them through function
// signatures.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Writer.Header().Set(requestIDHeader, requestID)

		td := &ctxutil.TraceData{
			TraceID:   requestID,
			RequestID: requestID,
			ClientIP:  c.ClientIP(),
		}
		if uid, ok := c.Get(authUserIDKey); ok {
			if parsed, ok := uid.(uuid.UUID); ok {
				td.UserID = parsed
			}
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), td)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
